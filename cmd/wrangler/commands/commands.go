// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete wrangler command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/cmd/wrangler/envcmd"
	"github.com/bureau-foundation/wrangler/cmd/wrangler/speccmd"
	"github.com/bureau-foundation/wrangler/cmd/wrangler/spicmd"
	"github.com/bureau-foundation/wrangler/lib/version"
)

type versionParams struct {
	cli.JSONOutput
}

// Root builds and returns the complete wrangler command tree.
func Root() *cli.Command {
	var subcommands []*cli.Command
	subcommands = append(subcommands, speccmd.Commands()...)
	subcommands = append(subcommands, envcmd.Commands()...)
	subcommands = append(subcommands, spicmd.Command(), versionCommand())

	return &cli.Command{
		Name: "wrangler",
		Description: `wrangler: curate and build notebook environments.

A spec document describes one or more environments: the conda and pip
packages, source repositories, and data sets each one needs. Curation
pins every entry to an exact version and records a content
fingerprint; the environment commands then clone, compile, install,
pack, register, and verify the pinned environment, and inject-spi
hands the result to the deployment repository.

Commands take spec files as arguments or from WRANGLER_SPEC, and read
configuration from --config or WRANGLER_CONFIG.`,
		Subcommands: subcommands,
		Examples: []cli.Example{
			{
				Description: "Check a spec before doing anything with it",
				Command:     "wrangler spec-validate environments/roman.yaml",
			},
			{
				Description: "Pin every entry, then build and test the environment",
				Command:     "wrangler curate environments/roman.yaml",
			},
			{
				Description: "Rebuild an environment from its existing pins",
				Command:     "wrangler reinstall --env roman-cal environments/roman.yaml",
			},
			{
				Description: "Show which lifecycle states each environment is in",
				Command:     "wrangler env-status environments/*.yaml",
			},
			{
				Description: "Commit curated artifacts to the deployment repository",
				Command:     "wrangler inject-spi --spi-push environments/roman.yaml",
			},
		},
	}
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Params:  func() any { return &params },
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			build := version.Current()
			if done, err := params.EmitJSON(build); done {
				return err
			}
			fmt.Printf("wrangler %s\n", build.Full())
			return nil
		},
	}
}
