// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

type dataParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions

	Select string `flag:"select" desc:"only data entries matching this selector (a|b|c or a regular expression)"`
}

func (p *dataParams) selection() (*selector.Selector, error) {
	compiled, err := selector.Compile(p.Select)
	if err != nil {
		return nil, cli.Validation("--select: %v", err)
	}
	return compiled, nil
}

// dataEntry is the data of one environment.
type dataEntry struct {
	Spec        string                `json:"spec"`
	Environment string                `json:"environment"`
	Data        []lifecycle.DataState `json:"data"`
}

type dataFunc func(*lifecycle.Driver, wrangler.EnvironmentSpec, *selector.Selector) ([]lifecycle.DataState, error)

// dataCommand builds a read-only command reporting the selected data
// entries of every environment.
func dataCommand(command cli.Command, inspect dataFunc) *cli.Command {
	var params dataParams
	command.Usage = "wrangler " + command.Name + " [flags] [spec.yaml...]"
	command.Params = func() any { return &params }
	command.Run = func(ctx context.Context, args []string, logger *slog.Logger) error {
		paths, err := params.SpecPaths(args)
		if err != nil {
			return err
		}
		selection, err := params.selection()
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

		entries := make([][]dataEntry, len(paths))
		runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(_ context.Context, index int, environment wrangler.EnvironmentSpec) error {
			states, err := inspect(toolchain.Lifecycle, environment, selection)
			if states != nil {
				entries[index] = append(entries[index], dataEntry{Spec: paths[index], Environment: environment.ID, Data: states})
			}
			return err
		})

		var flat []dataEntry
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
			printData(os.Stdout, styles, entry)
		}
		return runErr
	}
	return &command
}

func printData(w io.Writer, styles *cli.Styles, entry dataEntry) {
	fmt.Fprintf(w, "%s\n", styles.Headingf("%s", entry.Environment))
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	for _, data := range entry.Data {
		status := presence(styles, data.Present)
		if !data.Pinned {
			status = styles.Warn.Render("uncurated")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", data.Name, data.URL, data.Destination, status)
	}
	tw.Flush()
}

func dataListCommand() *cli.Command {
	return dataCommand(cli.Command{
		Name:    "data-list",
		Summary: "List the data entries of each environment",
		Description: `Print each selected data entry with its URL, the path it is fetched
to, and whether that path holds content matching the entry's pin.
Nothing is downloaded or modified.`,
	}, (*lifecycle.Driver).DataList)
}

func dataValidateCommand() *cli.Command {
	return dataCommand(cli.Command{
		Name:    string(lifecycle.DataValidate),
		Summary: "Verify fetched data against its pins",
		Description: `Hash every selected data entry's fetched file and compare it with the
entry's pin. Exits non-zero when an entry is uncurated, not fetched,
or fetched with different content.`,
	}, (*lifecycle.Driver).DataValidate)
}

func dataDeleteCommand() *cli.Command {
	var params dataParams

	return &cli.Command{
		Name:    string(lifecycle.DataDelete),
		Summary: "Remove fetched data files",
		Description: `Delete the fetched file of each selected data entry, whether or not
it matches its pin. The spec is not modified; packages-install
fetches the data again.`,
		Usage:  "wrangler data-delete [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			selection, err := params.selection()
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

			outcomes := make([][]*lifecycle.Outcome, len(paths))
			runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error {
				outcome, err := toolchain.Lifecycle.DataDelete(ctx, environment, selection)
				if err != nil {
					return err
				}
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
		},
	}
}

type printExportsParams struct {
	cli.JSONOutput
	cli.SpecOptions
}

// environmentExports is the env_vars of one environment.
type environmentExports struct {
	Spec        string            `json:"spec"`
	Environment string            `json:"environment"`
	Variables   map[string]string `json:"variables"`
}

func dataPrintExportsCommand() *cli.Command {
	var params printExportsParams

	return &cli.Command{
		Name:    "data-print-exports",
		Summary: "Print the environments' variables as shell exports",
		Description: `Print one export statement per env_vars entry of each selected
environment, sorted by name, for use as:

  eval "$(wrangler data-print-exports spec.yaml)"

The same variables are set in the registered kernel. References such
as $HOME in values are left for the shell to expand. An environment
without env_vars prints nothing.`,
		Usage:  "wrangler data-print-exports [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			var exports []environmentExports
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
					exports = append(exports, environmentExports{Spec: path, Environment: environment.ID, Variables: environment.EnvVars})
				}
			}
			if done, err := params.EmitJSON(exports); done {
				return err
			}
			for _, entry := range exports {
				fmt.Print(shellExports(entry.Variables))
			}
			return nil
		},
	}
}

// shellExports renders variables as POSIX shell export statements in
// name order. Values are double-quoted and only $ is left unescaped,
// so $VAR references still expand.
func shellExports(variables map[string]string) string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)
	escaper := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	var builder strings.Builder
	for _, name := range names {
		fmt.Fprintf(&builder, "export %s=\"%s\"\n", name, escaper.Replace(variables[name]))
	}
	return builder.String()
}
