// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash provides BLAKE3 keyed hashing with domain separation
// for everything wrangler fingerprints: curated environment specs,
// files inside packed environment archives, whole archives, and
// downloaded data archives.
//
// Each domain has its own fixed 32-byte key so that identical bytes
// hashed in different roles never produce the same digest. A spec
// fingerprint can therefore never be confused with a data pin even if
// the hashed inputs happen to coincide.
package hash
