// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envcmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

type kernelCleanupParams struct {
	cli.LogOptions
	cli.JSONOutput

	ConfigFile string `flag:"config" desc:"configuration file (default $WRANGLER_CONFIG)"`
}

func kernelCleanupCommand() *cli.Command {
	var params kernelCleanupParams

	return &cli.Command{
		Name:    string(lifecycle.EnvKernelCleanup),
		Summary: "Remove wrangler kernels whose environment no longer exists",
		Description: `Scan the kernels directory for kernels registered by wrangler whose
interpreter has disappeared (the environment was uninstalled outside
wrangler, or its prefix was moved) and unregister them. Kernels not
created by wrangler are never touched. No spec file is needed.`,
		Usage:  "wrangler env-kernel-cleanup [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			options := cli.SpecOptions{ConfigFile: params.ConfigFile}
			toolchain, err := options.Prepare(logger, nil)
			if err != nil {
				return err
			}
			removed, err := toolchain.Lifecycle.CleanupKernels(ctx)
			if err != nil {
				return err
			}
			logger.Info("kernel cleanup complete", "removed", len(removed))
			if done, err := params.EmitJSON(removed); done {
				return err
			}
			if len(removed) == 0 {
				fmt.Println("No orphaned kernels.")
				return nil
			}
			for _, name := range removed {
				fmt.Printf("removed %s\n", name)
			}
			return nil
		},
	}
}

type deleteReposParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.SpecOptions

	OverwriteLocalChanges bool `flag:"overwrite-local-changes" desc:"delete clones even when they have local changes"`
}

// removedClones is what delete-repos removed for one environment.
type removedClones struct {
	Environment string   `json:"environment"`
	Removed     []string `json:"removed"`
}

func deleteReposCommand() *cli.Command {
	var params deleteReposParams

	return &cli.Command{
		Name:    string(lifecycle.DeleteRepos),
		Summary: "Delete the clones of every repository an environment references",
		Description: `Remove the local clones of the environment's repositories, its vcs
packages, and its deployment repository from the repos directory.
Clones are shared by URL, so environments referencing the same
repositories lose them as well; clone-repos restores them. A clone
with local changes is kept unless --overwrite-local-changes is given.`,
		Usage:  "wrangler delete-repos [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			clone := cli.CloneOptions{OverwriteLocalChanges: params.OverwriteLocalChanges}
			toolchain, err := params.Prepare(logger, clone.Apply)
			if err != nil {
				return err
			}

			results := make([][]removedClones, len(paths))
			runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error {
				removed, err := toolchain.Lifecycle.DeleteRepos(ctx, environment)
				if err != nil {
					return err
				}
				results[index] = append(results[index], removedClones{Environment: environment.ID, Removed: removed})
				return nil
			})

			var flat []removedClones
			for _, list := range results {
				flat = append(flat, list...)
			}
			if done, err := params.EmitJSON(flat); done {
				if err != nil {
					return err
				}
				return runErr
			}
			for _, result := range flat {
				for _, dir := range result.Removed {
					fmt.Printf("%s: removed %s\n", result.Environment, dir)
				}
			}
			return runErr
		},
	}
}
