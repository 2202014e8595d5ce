// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs an installed environment directory into a
// portable archive and unpacks it again.
//
// An archive is a tar stream, optionally compressed with zstd
// ("tar.zst") or LZ4 ("tar.lz4"), plus a CBOR manifest written next to
// it (<archive>.manifest). The manifest lists every file with its mode,
// size, and BLAKE3 digest, and carries the digest of the archive bytes
// themselves. Unpack refuses an archive whose bytes do not match the
// manifest and verifies each extracted file before the tree is moved
// into place, so a successful unpack reproduces exactly what was
// packed.
//
// Both directions stage their output beside the destination and
// rename it into place at the end: an interrupted pack leaves no
// archive, and an interrupted unpack leaves no environment directory.
// The manifest is written after the archive is renamed, so "archive
// and manifest both present" means a complete pack.
//
// Environments are unpacked to the same prefix they were packed from.
// Package managers embed absolute prefix paths in scripts and
// metadata; relocating an environment is out of scope.
package archive
