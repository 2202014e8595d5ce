// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for wrangler.
//
// The central type is [Command]: a named node with optional
// [Command.Subcommands], a parameter struct whose tagged fields become
// pflag flags ([BindFlags]), and a Run function that receives a
// context and a logger scoped to the command path. Unknown commands
// and flags get "did you mean" suggestions by edit distance.
//
// Shared parameter groups compose by embedding: [LogOptions]
// (--verbose, --quiet), [JSONOutput] (--json), [ColorOptions]
// (--color), and [SpecOptions], which resolves spec file arguments and
// builds a [Toolchain] wiring configuration into the lifecycle driver,
// the curation engine, workflows, and the injector.
//
// Errors returned from commands are mapped onto [ToolError]
// categories by [Classify]; each category has its own exit status.
// [ExitError] exits quietly after a command printed its own report.
package cli
