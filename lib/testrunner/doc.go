// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testrunner verifies an installed environment by importing
// modules in its interpreter and by executing notebooks against its
// kernel.
//
// Verification never changes the environment. A run produces a
// [TestReport] with one [Result] per target; failing targets are data
// in the report, not errors. [TestReport.Failure] converts a report
// with failures into a [*TestFailure] for callers that want a
// non-zero exit. Run methods return an error only when verification
// itself could not run: a missing tool binary or a cancelled context.
//
// Targets execute concurrently, bounded by the configured job count.
package testrunner
