// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"fmt"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// CurationFailure reports the entry whose resolution aborted a
// curation run.
type CurationFailure struct {
	Environment string
	Entry       string
	Kind        wrangler.SourceKind
	Constraint  string
	Err         error
}

func (f *CurationFailure) Error() string {
	return fmt.Sprintf("curating %s entry %s/%s (constraint %q): %v",
		f.Kind, f.Environment, f.Entry, f.Constraint, f.Err)
}

func (f *CurationFailure) Unwrap() error { return f.Err }

// UnresettableEntry reports a curated entry whose original constraint
// was not recorded. Reset clears its flag and keeps the pin.
type UnresettableEntry struct {
	Environment string
	Entry       string
	Pin         string
}

func (u *UnresettableEntry) Error() string {
	return fmt.Sprintf("%s/%s: original constraint not recorded; cleared curated flag and kept %q",
		u.Environment, u.Entry, u.Pin)
}
