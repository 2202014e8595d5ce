// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package repos is the repository clone manager. It materializes the
// source and notebook repositories an environment references, each at
// an exact revision, under a deterministic directory derived from the
// clone URL:
//
//	https://github.com/spacetelescope/romancal.git → <root>/github.com/spacetelescope/romancal
//	git@github.com:spacetelescope/romancal         → <root>/github.com/spacetelescope/romancal
//
// Repeated clones of the same reference target the same directory. An
// existing clone already at the requested commit is left alone without
// touching the network; otherwise it is fetched and checked out. A
// fresh clone is made in a temporary sibling directory and renamed
// into place, so an interrupted clone never leaves a half-populated
// destination.
//
// Local modifications in an existing clone are handled according to a
// [LocalChangesPolicy]: fail (the default), discard them, or stash
// them. Failures are reported as [*CloneError]; the manager never
// retries on its own.
package repos
