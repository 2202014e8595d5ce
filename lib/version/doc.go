// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the wrangler binary.
//
// [Version], [GitCommit], and [BuildTime] are injected at build time
// with -ldflags -X. When the commit is not injected, [Current] falls
// back to the VCS stamp the Go toolchain records in the binary, so a
// plain "go install" still reports its revision.
package version
