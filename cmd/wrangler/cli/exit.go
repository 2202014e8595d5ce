// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. Commands return it after writing their own report,
// for outcomes like failing notebooks or error-severity validation
// issues that are results rather than unexpected errors.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ReportError writes err to w and returns the exit status for it.
// ExitErrors are silent; categorized errors exit with their category's
// code.
func ReportError(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(w, "error: %v\n", err)
	var toolErr *ToolError
	if errors.As(Classify(err), &toolErr) {
		return toolErr.Category.ExitCode()
	}
	return 1
}
