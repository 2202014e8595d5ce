// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/wrangler/lib/curation"
	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/inject"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/resolver"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

// ErrorCategory classifies command errors so that scripts can react
// to the exit status without parsing message text.
type ErrorCategory string

const (
	// CategoryValidation: bad input (flags, arguments, malformed or
	// invalid spec documents). Fix the input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: a referenced resource does not exist upstream
	// or locally (unknown environment, missing revision).
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryConflict: the operation conflicts with current state
	// (unmet precondition, uncurated environment, dirty target,
	// nothing to commit, local changes in a clone).
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: a temporary failure (network, timeout, lock
	// contention). Retrying may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: tool failures and everything unclassified.
	CategoryInternal ErrorCategory = "internal"
)

// ExitCode is the process exit status for the category.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConflict:
		return 4
	case CategoryTransient:
		return 5
	}
	return 1
}

// ToolError is a categorized command error. It wraps the underlying
// error so errors.Is and errors.As still see the full chain.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

// Error returns the underlying message; the category travels in the
// exit status, not the text.
func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err in a ToolError chosen from the wrangler error
// taxonomy. Errors that are already categorized are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return err
	}
	return &ToolError{Category: categorize(err), Err: err}
}

func categorize(err error) ErrorCategory {
	var (
		malformed   *specstore.MalformedSpecError
		cloneErr    *repos.CloneError
		curationErr *curation.CurationFailure
	)
	switch {
	case errors.As(err, &malformed),
		errors.Is(err, workflow.ErrInvalidEnvironment):
		return CategoryValidation
	case errors.Is(err, resolver.ErrNotFound),
		errors.Is(err, repos.ErrRevisionNotFound),
		errors.Is(err, workflow.ErrUnknownEnvironment):
		return CategoryNotFound
	case errors.As(err, &cloneErr) && cloneErr.Retryable():
		return CategoryTransient
	case errors.Is(err, envlock.ErrLocked):
		return CategoryTransient
	case errors.Is(err, lifecycle.ErrPrecondition),
		errors.Is(err, lifecycle.ErrNotCurated),
		errors.Is(err, lifecycle.ErrDataInvalid),
		errors.Is(err, inject.ErrDirtyTarget),
		errors.Is(err, inject.ErrNothingToCommit),
		errors.Is(err, repos.ErrLocalChanges),
		errors.Is(err, repos.ErrForeignClone):
		return CategoryConflict
	case errors.As(err, &curationErr):
		// A resolver that failed for reasons other than a missing
		// version (network, tool crash) may succeed on a rerun.
		return CategoryTransient
	}
	return CategoryInternal
}
