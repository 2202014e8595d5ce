// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for wrangler.
//
// Configuration comes from at most one file, named either by the
// WRANGLER_CONFIG environment variable (via [Load]) or by a --config
// flag (via [LoadFile]). There is no search path. Without a file the
// defaults apply: every directory lives under paths.root, which is
// $WRANGLER_ROOT or ~/.wrangler.
//
// String fields of the paths and spi sections support ${VAR} and
// ${VAR:-default} expansion after loading. ${WRANGLER_ROOT} expands to
// the configured paths.root, so a file that only moves the root moves
// everything derived from it.
//
// This package depends on no other wrangler packages.
package config
