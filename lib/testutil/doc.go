// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for wrangler packages.
//
// The git helpers build real repositories in t.TempDir(): [InitRepo]
// creates a working tree with an initial commit on "main",
// [CommitFiles] adds a commit, and [InitRemote] creates a bare
// repository seeded from a working tree so clone and push paths can
// run without a network. [RequireGit] skips the test when the git
// binary is missing.
//
// [WriteFile] and [WriteSpec] create fixture files with parent
// directories. [RequireReceive] bounds a channel read with a
// wall-clock timeout so a broken test fails instead of hanging.
// [UniqueID] generates distinct identifiers for parallel tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
