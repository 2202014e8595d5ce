// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolexec runs the external tools wrangler drives:
// micromamba, pip, uv, python, jupyter, git, and the configured build
// command. It centralizes three things every caller needs:
//
//   - Binary resolution: an explicitly configured path wins, then
//     PATH, then each fallback directory (the micromamba root's bin/,
//     the active environment's bin/).
//   - Error formatting: a failed command's error names the command
//     line and carries the tail of its stderr and stdout, so a
//     failure is diagnosable without re-running at higher verbosity.
//   - A [Runner] seam: library code accepts a Runner, production
//     wiring passes [Exec], and tests pass a [Fake] with scripted
//     responses.
//
// Commands run to completion. The only deadline is the optional
// per-invocation Timeout, applied here at the process boundary.
package toolexec
