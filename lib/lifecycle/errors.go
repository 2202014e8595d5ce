// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition means the state a transition requires is absent.
	ErrPrecondition = errors.New("precondition not met")

	// ErrPostcondition means the side effect completed but the
	// re-probe does not show the expected state.
	ErrPostcondition = errors.New("postcondition not met after transition")

	// ErrNotCurated means an install was requested for a spec whose
	// packages are not all pinned.
	ErrNotCurated = errors.New("environment is not curated")

	// ErrDataInvalid means fetched data is missing or does not match
	// its pin.
	ErrDataInvalid = errors.New("data does not validate")
)

// LifecycleError is a failed transition.
type LifecycleError struct {
	Transition  Transition
	Environment string
	Err         error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transition, e.Environment, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
