// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver provides the upstream lookups behind curation, one
// per entry kind:
//
//   - [Registry] asks "uv pip compile" for the exact version a
//     requirement resolves to today and returns "==<version>".
//   - [VCS] asks "git ls-remote" which commit a branch or tag names
//     and returns the 40-hex sha.
//   - [Data] downloads a data archive, hashes it with the data domain
//     key, and returns "blake3:<hex>".
//
// Each returns an error wrapping [ErrNotFound] when the upstream has
// no match, so callers can distinguish a missing reference from an
// unreachable upstream.
package resolver
