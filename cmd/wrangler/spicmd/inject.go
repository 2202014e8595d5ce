// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spicmd implements inject-spi, which commits a curated
// environment's artifacts onto a feature branch of its downstream
// deployment repository (the "SPI" image repository), optionally
// builds and pushes it.
package spicmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/config"
	"github.com/bureau-foundation/wrangler/lib/inject"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

type injectParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions
	cli.CloneOptions

	CommitMessage string `flag:"spi-commit-message" desc:"commit message (default \"Update <env> environment\")"`
	Branch        string `flag:"spi-branch" desc:"feature branch (default wrangler/<env>)"`
	Prune         bool   `flag:"spi-prune" desc:"remove files in the environment's artifact directory that are no longer produced"`
	Build         bool   `flag:"spi-build" desc:"run spi.build_command in the target after committing"`
	Push          bool   `flag:"spi-push" desc:"push the feature branch to spi.remote after committing (and building)"`
	Target        string `flag:"spi-target" desc:"existing local clone of the deployment repository (default: clone it under --repos-dir)"`
}

// injection is the outcome for one environment.
type injection struct {
	Spec        string         `json:"spec"`
	Environment string         `json:"environment"`
	Target      string         `json:"target"`
	Result      *inject.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Command returns the inject-spi command.
func Command() *cli.Command {
	var params injectParams

	return &cli.Command{
		Name:    "inject-spi",
		Summary: "Commit curated environment artifacts into the deployment repository",
		Description: `Render the artifacts of each curated environment (pinned
requirements.txt, environment.yml, the spec itself, and archive.json
when the environment is packed) and commit them onto a feature branch
of the deployment repository named by the spec's deployment section.

The deployment repository is cloned under --repos-dir unless
--spi-target names an existing clone. The clone must be clean. The
feature branch is always recreated from the base branch, so the
commit's diff is exactly this environment's change. An injection
that changes nothing fails with nothing-to-commit.

With --spi-build the configured build command runs in the clone after
the commit (WRANGLER_ENVIRONMENT, WRANGLER_BRANCH, and WRANGLER_COMMIT
are set); a failing build keeps the commit for inspection. With
--spi-push the branch is pushed only after the commit and build
succeed.`,
		Usage: "wrangler inject-spi [flags] [spec.yaml...]",
		Examples: []cli.Example{
			{
				Description: "Inject, build the images, and push the branch",
				Command:     "wrangler inject-spi --spi-build --spi-push environments/roman.yaml",
			},
			{
				Description: "Inject into a local checkout with a custom message",
				Command:     "wrangler inject-spi --spi-target ~/src/images --spi-commit-message 'Roman cal 25.1' environments/roman.yaml",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			styles, err := params.NewStyles(os.Stdout)
			if err != nil {
				return err
			}
			toolchain, err := params.Prepare(logger, params.CloneOptions.Apply)
			if err != nil {
				return err
			}
			if params.Build && len(toolchain.Config.SPI.BuildCommand) == 0 {
				return cli.Validation("--spi-build needs spi.build_command in the configuration")
			}

			var mutex sync.Mutex
			var injections []injection
			record := func(entry injection) {
				mutex.Lock()
				defer mutex.Unlock()
				injections = append(injections, entry)
			}

			runErr := workflow.ForEach(ctx, paths, params.Parallel, func(ctx context.Context, path string) error {
				document, err := specstore.Load(path)
				if err != nil {
					return err
				}
				environments, err := workflow.Scope(document, params.WorkflowOptions())
				if err != nil {
					return err
				}
				if params.Branch != "" && len(environments) > 1 {
					return cli.Validation("--spi-branch names one branch but %s selects %d environments; narrow with --env", path, len(environments))
				}
				encoded, err := document.Encode()
				if err != nil {
					return err
				}
				for _, environment := range environments {
					entry := injection{Spec: path, Environment: environment.ID}
					result, target, err := injectEnvironment(ctx, toolchain, &params, environment, encoded, logger)
					entry.Target, entry.Result = target, result
					if err != nil {
						entry.Error = err.Error()
						record(entry)
						var buildErr *inject.BuildError
						if errors.As(err, &buildErr) && buildErr.Output != "" {
							fmt.Fprintf(os.Stderr, "build output for %s:\n%s\n", environment.ID, buildErr.Output)
						}
						return err
					}
					record(entry)
				}
				return nil
			})

			if done, err := params.EmitJSON(injections); done {
				if err != nil {
					return err
				}
				return runErr
			}
			for _, entry := range injections {
				printInjection(os.Stdout, styles, entry)
			}
			return runErr
		},
	}
}

// injectEnvironment locates the target clone, renders the artifacts,
// and runs the injection for one environment.
func injectEnvironment(ctx context.Context, toolchain *cli.Toolchain, params *injectParams, environment wrangler.EnvironmentSpec, encoded []byte, logger *slog.Logger) (*inject.Result, string, error) {
	cfg := toolchain.Config
	deployment := environment.Deployment
	baseBranch := firstNonEmpty(deployment.BaseBranch, cfg.SPI.BaseBranch)
	logger = logger.With("environment", environment.ID)

	target, err := targetClone(ctx, toolchain.Repositories, params.Target, deployment, baseBranch)
	if err != nil {
		return nil, "", fmt.Errorf("environment %s: %w", environment.ID, err)
	}

	state, err := toolchain.Lifecycle.Probe(ctx, environment)
	if err != nil {
		return nil, target, err
	}
	var manifest *archive.Manifest
	if state.Archive != "" {
		manifest, err = archive.ReadManifest(state.Archive)
		if err != nil {
			return nil, target, fmt.Errorf("reading manifest of %s: %w", state.Archive, err)
		}
	} else {
		logger.Info("environment is not packed; archive.json omitted")
	}

	artifacts, err := inject.Render(inject.Input{Spec: environment, SpecDocument: encoded, Manifest: manifest})
	if err != nil {
		return nil, target, &cli.ToolError{Category: cli.CategoryConflict, Err: err}
	}

	request := buildRequest(cfg, params, environment, target, baseBranch)
	request.Artifacts = artifacts
	result, err := toolchain.Injector.Inject(ctx, request)
	return result, target, err
}

// buildRequest assembles the injection request from flags, the spec's
// deployment section, and configuration, in that order of precedence.
func buildRequest(cfg *config.Config, params *injectParams, environment wrangler.EnvironmentSpec, target, baseBranch string) inject.Request {
	request := inject.Request{
		Environment:   environment.ID,
		Target:        target,
		ArtifactRoot:  firstNonEmpty(environment.Deployment.Path, cfg.SPI.ArtifactRoot),
		BaseBranch:    baseBranch,
		Branch:        firstNonEmpty(params.Branch, "wrangler/"+environment.ID),
		CommitMessage: firstNonEmpty(params.CommitMessage, fmt.Sprintf("Update %s environment", environment.ID)),
		Prune:         params.Prune,
		Push:          params.Push,
		Remote:        cfg.SPI.Remote,
	}
	if params.Build {
		request.BuildCommand = cfg.SPI.BuildCommand
		request.BuildTimeout = cfg.BuildTimeout()
	}
	return request
}

// targetClone returns the explicit target, or clones the deployment
// repository at its base branch through the clone manager.
func targetClone(ctx context.Context, clones *repos.Manager, explicit string, deployment wrangler.Deployment, baseBranch string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if deployment.Repository == "" {
		return "", cli.Validation("spec has no deployment.repository; pass --spi-target")
	}
	result, err := clones.Clone(ctx, repos.Reference{Name: "deployment", URL: deployment.Repository, Revision: baseBranch})
	if err != nil {
		return "", err
	}
	return result.Dir, nil
}

func printInjection(w io.Writer, styles *cli.Styles, entry injection) {
	if entry.Result == nil {
		fmt.Fprintf(w, "%s  %s %s\n", styles.Headingf("%s", entry.Environment), styles.Verdict(false), entry.Error)
		return
	}
	result := entry.Result
	var flags []string
	if result.Built {
		flags = append(flags, "built")
	}
	if result.Pushed {
		flags = append(flags, "pushed")
	}
	verdict := styles.Verdict(entry.Error == "")
	commit := result.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	fmt.Fprintf(w, "%s  %s %s @ %s  %s\n", styles.Headingf("%s", entry.Environment), verdict, result.Branch,
		styles.State.Render(commit), styles.Faint.Render(strings.Join(flags, ", ")))
	fmt.Fprintf(w, "  %s: %s\n", result.Directory, strings.Join(result.Written, ", "))
	if len(result.Pruned) > 0 {
		fmt.Fprintf(w, "  pruned: %s\n", strings.Join(result.Pruned, ", "))
	}
	if entry.Error != "" {
		fmt.Fprintf(w, "  %s\n", styles.Fail.Render(entry.Error))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
