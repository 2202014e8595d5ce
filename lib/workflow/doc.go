// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow composes curation and lifecycle transitions into
// the multi-step operations a user runs against a spec file: curate,
// reinstall, reset-curation, and their data and spec variants.
//
// A workflow stops at its first failing step. Steps that completed
// stay completed; rerunning the workflow resumes because every
// lifecycle transition skips itself when its postcondition holds.
// The spec file is saved only after the curation step of a workflow
// succeeds, never on a partial curation run.
//
// [ForEach] fans a workflow out over several spec files, each an
// independent unit: one file failing does not stop the others.
package workflow
