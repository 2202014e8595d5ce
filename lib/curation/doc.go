// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package curation turns loosely constrained spec entries into exact,
// reproducible pins and reverses that process.
//
// The [Engine] works on one flavor at a time (spec or data). Each
// flavor covers a disjoint set of sections, and both share the same
// selector semantics. Resolution goes through a [Resolver] chosen by
// the entry's source kind, so registry packages, vcs references, and
// data archives each use their own upstream.
//
// Curation is all-or-nothing. Every selected entry is resolved before
// the document is touched; the first failure aborts the run with a
// [*CurationFailure] and the caller's document is unchanged. On
// success the engine returns a new document and leaves the input
// alone. Entries that are already curated are skipped, so curating a
// curated document yields the same document.
//
// Reset restores each entry's recorded original constraint. Entries
// curated without a recorded original cannot be restored; for those
// the engine only clears the curated flag and reports an
// [*UnresettableEntry] warning.
package curation
