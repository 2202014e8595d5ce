// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import (
	"fmt"
	"strings"
)

// MalformedSpecError reports a schema violation. A malformed document
// blocks every operation against it.
type MalformedSpecError struct {
	// Source is the file path, or a caller-supplied label for
	// in-memory documents.
	Source string

	// Problems lists every violation found, each prefixed with the
	// location it applies to.
	Problems []string
}

func (e *MalformedSpecError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("malformed spec %s: %s", e.Source, e.Problems[0])
	}
	return fmt.Sprintf("malformed spec %s: %d problems:\n  %s",
		e.Source, len(e.Problems), strings.Join(e.Problems, "\n  "))
}
