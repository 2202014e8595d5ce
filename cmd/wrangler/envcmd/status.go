// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

type statusParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions
}

// statusEntry is the probed state of one environment.
type statusEntry struct {
	Spec   string             `json:"spec"`
	States []lifecycle.State  `json:"states"`
	State  lifecycle.StateSet `json:"detail"`
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "env-status",
		Summary: "Show the probed lifecycle state of each environment",
		Description: `Probe each selected environment and print which lifecycle states
hold: repos-cloned, compiled, installed, data-fetched, packed,
compacted, registered. Nothing is modified. State is never cached;
every run re-derives it from the filesystem, the clones, and the
kernel registry.`,
		Usage:  "wrangler env-status [flags] [spec.yaml...]",
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
			toolchain, err := params.Prepare(logger, nil)
			if err != nil {
				return err
			}

			entries := make([][]statusEntry, len(paths))
			runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error {
				state, err := toolchain.Lifecycle.Probe(ctx, environment)
				if err != nil {
					return fmt.Errorf("probing %s: %w", environment.ID, err)
				}
				entries[index] = append(entries[index], statusEntry{Spec: paths[index], States: state.States(), State: state})
				return nil
			})

			var flat []statusEntry
			for _, list := range entries {
				flat = append(flat, list...)
			}
			if done, err := params.EmitJSON(flat); done {
				if err != nil {
					return err
				}
				return runErr
			}
			for _, entry := range flat {
				printStatus(os.Stdout, styles, entry)
			}
			return runErr
		},
	}
}

func printStatus(w io.Writer, styles *cli.Styles, entry statusEntry) {
	state := entry.State
	fmt.Fprintf(w, "%s  %s\n", styles.Headingf("%s", state.Environment), styles.State.Render(cli.FormatStates(entry.States)))

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  prefix\t%s\t%s\n", state.Install.Prefix, presence(styles, state.Install.Exists))
	for _, repository := range state.Repositories {
		detail := repository.Commit
		if len(detail) > 12 {
			detail = detail[:12]
		}
		fmt.Fprintf(tw, "  repo %s\t%s\t%s %s\n", repository.Name, repository.Dir, presence(styles, repository.Cloned()), styles.Faint.Render(detail))
	}
	for _, data := range state.Data {
		status := presence(styles, data.Present)
		if !data.Pinned {
			status = styles.Warn.Render("uncurated")
		}
		fmt.Fprintf(tw, "  data %s\t%s\t%s\n", data.Name, data.Destination, status)
	}
	if state.Archive != "" {
		fmt.Fprintf(tw, "  archive\t%s\t%s\n", state.Archive, presence(styles, true))
	}
	kernel := presence(styles, state.KernelCurrent)
	if state.KernelPresent && !state.KernelCurrent {
		kernel = styles.Warn.Render("stale")
	}
	fmt.Fprintf(tw, "  kernel\t%s\t%s\n", state.Environment, kernel)
	tw.Flush()
}

func presence(styles *cli.Styles, ok bool) string {
	if ok {
		return styles.Pass.Render("ok")
	}
	return styles.Faint.Render("missing")
}

type printNameParams struct {
	cli.JSONOutput
	cli.SpecOptions
}

type environmentName struct {
	Spec        string `json:"spec"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func printNameCommand() *cli.Command {
	var params printNameParams

	return &cli.Command{
		Name:    "env-print-name",
		Summary: "Print the environment (and kernel) names a spec defines",
		Description: `Print one environment identifier per line. The identifier is also
the micromamba environment name and the Jupyter kernel name, so
scripts use this to locate what the other commands create.`,
		Usage:  "wrangler env-print-name [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			var names []environmentName
			for _, path := range paths {
				document, err := specstore.Load(path)
				if err != nil {
					return err
				}
				environments, err := workflow.Scope(document, params.WorkflowOptions())
				if err != nil {
					return err
				}
				for _, environment := range environments {
					names = append(names, environmentName{Spec: path, ID: environment.ID, DisplayName: environment.KernelDisplayName()})
				}
			}
			if done, err := params.EmitJSON(names); done {
				return err
			}
			for _, name := range names {
				fmt.Println(name.ID)
			}
			return nil
		},
	}
}
