// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inject commits a curated environment's artifacts onto a
// feature branch of a downstream deployment repository.
//
// An injection runs six steps against a local clone of the target,
// each step's postcondition being the next step's precondition:
//
//  1. The clone must be clean; it is then checked out on the base
//     branch. A dirty clone fails with [ErrDirtyTarget] and nothing
//     is touched.
//  2. The feature branch is cut from the base branch. When the request
//     names a remote and the clone has a remote-tracking ref for the
//     base, the branch is cut from that ref instead, refreshed first
//     when pushing. A cached clone's local base can lag behind the
//     remote. A branch left over from an earlier run is deleted and
//     recreated so the diff is always against base.
//  3. The artifacts ([Render]) are written under
//     <artifact root>/<environment>.
//  4. With pruning, files in that directory that the new artifact set
//     does not contain are removed.
//  5. The directory is staged and committed. An empty diff fails with
//     [ErrNothingToCommit] and the branch gets no commit.
//  6. Optionally a build command runs in the clone. A failure returns
//     [*BuildError] alongside the result; the commit stays.
//
// After a successful commit (and build, when requested) the branch can
// be pushed to the target's remote. The base branch is never moved.
//
// Injections against the same clone are serialized with an envlock
// target lock, so two concurrent runs cannot interleave on one working
// tree.
package inject
