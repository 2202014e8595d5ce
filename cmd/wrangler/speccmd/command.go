// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package speccmd implements the commands that read and edit spec
// documents: validation, fingerprint refresh, and the curation
// workflows that pin or un-pin entries. Every command accepts one or
// more spec files (or WRANGLER_SPEC) and processes them as
// independent units.
package speccmd

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

// Commands returns the spec command set.
func Commands() []*cli.Command {
	return []*cli.Command{
		validateCommand(),
		updateCommand(),
		curateCommand(),
		resetCurationCommand(),
		dataCurateCommand(),
		dataResetCommand(),
		specResetCommand(),
	}
}

// workflowCommand builds a command that runs one workflow per spec.
func workflowCommand(command cli.Command, fn cli.WorkflowFunc) *cli.Command {
	var params cli.WorkflowParams
	command.Params = func() any { return &params }
	command.Run = func(ctx context.Context, args []string, logger *slog.Logger) error {
		return cli.RunWorkflow(ctx, logger, &params, args, fn)
	}
	if command.Usage == "" {
		command.Usage = "wrangler " + command.Name + " [flags] [spec.yaml...]"
	}
	return &command
}

func curateCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "curate",
		Summary: "Pin every spec entry, then build and register the environment",
		Description: `Curate an environment end to end.

Repositories are cloned first so that source packages can be resolved
against them. Every uncurated package and repository entry is then
resolved to an exact pin (==version for registry packages, a full
commit sha for vcs packages and repositories) and the spec is saved
atomically. Finally the environment is compiled, installed, and
registered as a Jupyter kernel.

Already curated entries keep their pins, so rerunning curate on a
curated spec changes nothing and only completes missing lifecycle
steps. The saved curation persists even if a later step fails.`,
		Examples: []cli.Example{
			{Description: "Curate every environment in a spec", Command: "wrangler curate environments/roman.yaml"},
			{Description: "Pin only two packages", Command: "wrangler curate --select 'numpy|astropy' environments/roman.yaml"},
		},
	}, func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
		return runner.Curate(ctx, path, options)
	})
}

func resetCurationCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "reset-curation",
		Summary: "Delete the environment and restore the spec's original constraints",
		Description: `Undo curation: delete the installed environment (kernel, install,
archive, compiled wheels), then restore each selected entry's
pre-curation constraint and save.

Entries curated without a recorded original constraint cannot be
restored; their curated flag is cleared, they keep the pin, and a
warning names them.`,
	}, func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
		return runner.ResetCuration(ctx, path, options)
	})
}

func dataCurateCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "data-curate",
		Summary: "Pin data entries to the digest of their current archive",
		Description: `Download each selected, uncurated data entry and pin it to the
BLAKE3 digest of the archive. Package entries are not touched.`,
	}, func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
		return runner.DataCurate(ctx, path, options)
	})
}

func dataResetCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "data-reset",
		Summary: "Restore the original constraints of data entries",
	}, func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
		return runner.DataReset(ctx, path, options)
	})
}

func specResetCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "spec-reset",
		Summary: "Un-pin every package and repository and drop the curation record",
		Description: `Reset every spec-flavor entry of the selected environments to its
original constraint and remove the environment's curation block
(fingerprint and timestamp). Data pins are preserved. The installed
environment is left alone; use reset-curation to delete it too.`,
	}, func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
		return runner.SpecReset(ctx, path, options)
	})
}

func updateCommand() *cli.Command {
	return workflowCommand(cli.Command{
		Name:    "spec-update",
		Summary: "Accept hand edits by recomputing curation fingerprints",
		Description: `Recompute the fingerprint of every curated environment from its
current content and save. Run this after deliberately editing a
curated spec by hand; until then validation reports the environment
as modified since curation and lifecycle commands refuse it.`,
	}, func(ctx context.Context, runner *workflow.Runner, path string, _ workflow.Options) (*workflow.Report, error) {
		return runner.SpecUpdate(ctx, path)
	})
}
