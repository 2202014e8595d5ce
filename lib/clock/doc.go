// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that stamps curation times or backs off between clone retries
// takes a Clock instead of calling time.Now or time.After. Production
// wiring passes Real(); tests pass Fake() and move time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go manager.Clone(ctx, reference) // backs off via fake.After
//	fake.WaitForTimers(1)
//	fake.Advance(2 * time.Second)
//
// Tests that only need waits to complete can call SetAutoAdvance, in
// which case every After call advances the fake clock by its duration
// and fires at once.
package clock
