// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envcmd implements the environment lifecycle commands. Each
// transition probes the environment first and does nothing when its
// postcondition already holds, so every command here is safe to
// rerun. A failed transition leaves earlier ones in place; rerunning
// resumes where it stopped.
package envcmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/config"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

// Commands returns the environment command set.
func Commands() []*cli.Command {
	return []*cli.Command{
		reinstallCommand(),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.CloneRepos),
			Summary: "Clone source and notebook repositories at their revisions",
			Description: `Clone every repository and vcs package the environment references
into the repos directory (one deterministic directory per URL) and
check out the spec's revision. Existing clones at a pinned commit are
left alone; branch and tag revisions are fetched every time.

Clones with local changes are refused unless --overwrite-local-changes
or --stash-local-changes is given. Transient network failures are
retried with exponential backoff (clone.attempts, clone.backoff).`,
		}, false, (*lifecycle.Driver).CloneRepos),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.PackagesCompile),
			Summary: "Build wheels for vcs packages from their clones",
		}, true, (*lifecycle.Driver).PackagesCompile),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.PackagesInstall),
			Summary: "Install the curated environment and fetch its data",
			Description: `Create the environment with micromamba if needed, install every
curated package at its pin (vcs packages from their compiled wheels),
and fetch pinned data entries. Requires a fully curated spec whose
content matches its curation fingerprint.`,
		}, true, (*lifecycle.Driver).PackagesInstall),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.PackagesUninstall),
			Summary: "Remove the installed environment",
		}, false, (*lifecycle.Driver).PackagesUninstall),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvPack),
			Summary: "Pack the installed environment into an archive",
			Description: `Write <archives>/<env>.<format> and its manifest. The format is the
spec's archive_format, else --env-archive-format, else archive.format
from the configuration.`,
		}, false, (*lifecycle.Driver).EnvPack),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvUnpack),
			Summary: "Restore an environment from its archive",
		}, false, (*lifecycle.Driver).EnvUnpack),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvCompact),
			Summary: "Remove caches and bytecode from the installed environment",
		}, false, (*lifecycle.Driver).EnvCompact),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvRegister),
			Summary: "Register the environment as a Jupyter kernel",
		}, false, (*lifecycle.Driver).EnvRegister),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvUnregister),
			Summary: "Remove the environment's Jupyter kernel",
		}, false, (*lifecycle.Driver).EnvUnregister),
		transitionCommand(cli.Command{
			Name:    string(lifecycle.EnvDelete),
			Summary: "Unregister, uninstall, and remove archives and wheels",
			Description: `Remove everything the lifecycle created for the environment except
shared clones and fetched data: the kernel, the install, every
archive and manifest, and the compiled wheels.`,
		}, false, (*lifecycle.Driver).EnvDelete),
		kernelCleanupCommand(),
		deleteReposCommand(),
		dataListCommand(),
		dataValidateCommand(),
		dataDeleteCommand(),
		dataPrintExportsCommand(),
		statusCommand(),
		printNameCommand(),
		testImportsCommand(),
		testNotebooksCommand(),
	}
}

type transitionParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions
	cli.CloneOptions

	ArchiveFormat string `flag:"env-archive-format" desc:"archive format when the spec sets none: tar.zst, tar.lz4, or tar"`
}

// adjust applies the flags that override configuration.
func (p *transitionParams) adjust(cfg *config.Config) error {
	if err := p.CloneOptions.Apply(cfg); err != nil {
		return err
	}
	if p.ArchiveFormat != "" {
		if !wrangler.ValidArchiveFormat(p.ArchiveFormat) {
			return cli.Validation("--env-archive-format must be one of %v, got %q", wrangler.ArchiveFormats, p.ArchiveFormat)
		}
		cfg.Archive.Format = p.ArchiveFormat
	}
	return nil
}

type transitionFunc func(*lifecycle.Driver, context.Context, wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)

// transitionCommand builds a command running one lifecycle transition
// on every selected environment of every spec. Strict transitions
// refuse environments with error-severity validation issues.
func transitionCommand(command cli.Command, strict bool, transition transitionFunc) *cli.Command {
	var params transitionParams
	command.Usage = "wrangler " + command.Name + " [flags] [spec.yaml...]"
	command.Params = func() any { return &params }
	command.Run = func(ctx context.Context, args []string, logger *slog.Logger) error {
		paths, err := params.SpecPaths(args)
		if err != nil {
			return err
		}
		styles, err := params.NewStyles(os.Stdout)
		if err != nil {
			return err
		}
		toolchain, err := params.Prepare(logger, params.adjust)
		if err != nil {
			return err
		}

		outcomes := make([][]*lifecycle.Outcome, len(paths))
		runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error {
			if strict {
				if err := requireValid(environment); err != nil {
					return err
				}
			}
			outcome, err := transition(toolchain.Lifecycle, ctx, environment)
			if err != nil {
				return err
			}
			logger.Info("transition complete", "environment", environment.ID, "transition", outcome.Transition, "skipped", outcome.Skipped)
			outcomes[index] = append(outcomes[index], outcome)
			return nil
		})

		var flat []*lifecycle.Outcome
		for _, list := range outcomes {
			flat = append(flat, list...)
		}
		if done, err := params.EmitJSON(flat); done {
			if err != nil {
				return err
			}
			return runErr
		}
		for _, outcome := range flat {
			cli.PrintOutcome(os.Stdout, styles, outcome)
		}
		return runErr
	}
	return &command
}

// forEachEnvironment loads every spec (up to --parallel at once) and
// calls fn for each selected environment in order, stopping within a
// spec at the first failure. index is the spec's position in paths.
func forEachEnvironment(ctx context.Context, paths []string, options *cli.SpecOptions, fn func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error) error {
	positions := make(map[string]int, len(paths))
	for index, path := range paths {
		positions[path] = index
	}
	return workflow.ForEach(ctx, paths, options.Parallel, func(ctx context.Context, path string) error {
		document, err := specstore.Load(path)
		if err != nil {
			return err
		}
		environments, err := workflow.Scope(document, options.WorkflowOptions())
		if err != nil {
			return err
		}
		for _, environment := range environments {
			if err := fn(ctx, positions[path], environment); err != nil {
				return err
			}
		}
		return nil
	})
}

// requireValid refuses environments with error-severity issues.
func requireValid(environment wrangler.EnvironmentSpec) error {
	var problems []error
	for _, issue := range specstore.ValidateEnvironment(environment) {
		if issue.Severity == wrangler.SeverityError {
			problems = append(problems, errors.New(issue.String()))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &cli.ToolError{
		Category: cli.CategoryConflict,
		Err:      errors.Join(append([]error{errors.New("environment " + environment.ID + " has validation errors (run spec-validate)")}, problems...)...),
	}
}

func reinstallCommand() *cli.Command {
	var params cli.WorkflowParams
	return &cli.Command{
		Name:    "reinstall",
		Summary: "Rebuild a curated environment exactly as pinned",
		Description: `Rebuild each environment from an already curated spec: clone
repositories at their pinned commits, compile vcs packages, install,
and register the kernel. The spec is never modified; an uncurated or
hand-modified environment is refused.`,
		Usage:  "wrangler reinstall [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return cli.RunWorkflow(ctx, logger, &params, args,
				func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error) {
					return runner.Reinstall(ctx, path, options)
				})
		},
	}
}
