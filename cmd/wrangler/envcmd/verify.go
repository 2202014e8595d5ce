// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/config"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/testrunner"
)

type verifyParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions

	Include string        `flag:"include" desc:"only targets matching this selector (a|b|c or a regular expression)"`
	Exclude string        `flag:"exclude" desc:"skip targets matching this selector"`
	Jobs    int           `flag:"jobs,j" desc:"targets run concurrently (default testing.jobs)"`
	Timeout time.Duration `flag:"timeout" desc:"bound on each target (default from the testing section)"`
}

// verifyKind distinguishes the two verification commands.
type verifyKind struct {
	name    lifecycle.Transition
	timeout func(cfg *config.Config) *string
	run     func(driver *lifecycle.Driver, ctx context.Context, spec wrangler.EnvironmentSpec, selection lifecycle.Selection) (*testrunner.TestReport, error)

	// configExcludes applies testing.exclude.
	configExcludes bool
}

func testImportsCommand() *cli.Command {
	return verifyCommand(cli.Command{
		Name:    string(lifecycle.TestImports),
		Summary: "Import every module the environment promises in its interpreter",
		Description: `Import each module in a fresh interpreter from the environment's
prefix. The modules are the imports declared by the spec's test
notebooks, or the import names of its packages when none are
declared. Failing imports are reported with the tail of their
traceback; the command exits non-zero when any import fails.`,
	}, verifyKind{
		name:    lifecycle.TestImports,
		timeout: func(cfg *config.Config) *string { return &cfg.Testing.ImportTimeout },
		run:     (*lifecycle.Driver).TestImports,
	})
}

func testNotebooksCommand() *cli.Command {
	return verifyCommand(cli.Command{
		Name:    string(lifecycle.TestNotebooks),
		Summary: "Execute the spec's test notebooks against the registered kernel",
		Description: `Execute each test notebook with nbconvert using the environment's
registered kernel. Notebooks are named repository/path; their
repositories must be cloned and the kernel registered. Executed
copies are written under the test output directory and the sources
are never modified. Notebooks matching testing.exclude in the
configuration are always skipped.`,
	}, verifyKind{
		name:           lifecycle.TestNotebooks,
		timeout:        func(cfg *config.Config) *string { return &cfg.Testing.Timeout },
		run:            (*lifecycle.Driver).TestNotebooks,
		configExcludes: true,
	})
}

func verifyCommand(command cli.Command, kind verifyKind) *cli.Command {
	var params verifyParams
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
		var excludes []string
		toolchain, err := params.Prepare(logger, func(cfg *config.Config) error {
			if params.Jobs < 0 {
				return cli.Validation("--jobs must not be negative, got %d", params.Jobs)
			}
			if params.Jobs > 0 {
				cfg.Testing.Jobs = params.Jobs
			}
			if params.Timeout > 0 {
				*kind.timeout(cfg) = params.Timeout.String()
			}
			if kind.configExcludes {
				excludes = append(excludes, cfg.Testing.Exclude...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if params.Exclude != "" {
			excludes = append(excludes, params.Exclude)
		}
		selection, err := buildSelection(params.Include, excludes)
		if err != nil {
			return err
		}

		reports := make([][]*testrunner.TestReport, len(paths))
		var failed atomic.Bool
		runErr := forEachEnvironment(ctx, paths, &params.SpecOptions, func(ctx context.Context, index int, environment wrangler.EnvironmentSpec) error {
			report, err := kind.run(toolchain.Lifecycle, ctx, environment, selection)
			if report != nil {
				reports[index] = append(reports[index], report)
			}
			var failure *testrunner.TestFailure
			if errors.As(err, &failure) {
				failed.Store(true)
				logger.Warn("verification failed", "environment", environment.ID, "kind", kind.name,
					"failed", len(failure.Failed), "total", failure.Total)
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("verification passed", "environment", environment.ID, "kind", kind.name, "targets", len(report.Results))
			return nil
		})

		var flat []*testrunner.TestReport
		for _, list := range reports {
			flat = append(flat, list...)
		}
		if done, err := params.EmitJSON(flat); done {
			if err != nil {
				return err
			}
		} else {
			for _, report := range flat {
				printReport(os.Stdout, styles, report)
			}
		}
		if runErr != nil {
			return runErr
		}
		if failed.Load() {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}
	return &command
}

// buildSelection compiles the include pattern and joins the exclude
// patterns into one alternation. Empty patterns select nothing extra.
func buildSelection(include string, excludes []string) (lifecycle.Selection, error) {
	var selection lifecycle.Selection
	if strings.TrimSpace(include) != "" {
		compiled, err := selector.Compile(include)
		if err != nil {
			return selection, cli.Validation("--include: %v", err)
		}
		selection.Include = compiled
	}
	var alternatives []string
	for _, pattern := range excludes {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			alternatives = append(alternatives, "(?:"+pattern+")")
		}
	}
	if len(alternatives) > 0 {
		compiled, err := selector.Compile(strings.Join(alternatives, "|"))
		if err != nil {
			return selection, cli.Validation("exclude patterns: %v", err)
		}
		selection.Exclude = compiled
	}
	return selection, nil
}

func printReport(w io.Writer, styles *cli.Styles, report *testrunner.TestReport) {
	passed := len(report.Results) - len(report.Failed())
	fmt.Fprintf(w, "%s  %s\n", styles.Headingf("%s %s", report.Environment, report.Kind),
		styles.Faint.Render(fmt.Sprintf("%d/%d passed", passed, len(report.Results))))
	for _, result := range report.Results {
		fmt.Fprintf(w, "  %s %s %s\n", styles.Verdict(result.Passed), result.Target,
			styles.Faint.Render(result.Duration.Round(time.Millisecond).String()))
		if !result.Passed && result.Output != "" {
			for _, line := range strings.Split(result.Output, "\n") {
				fmt.Fprintf(w, "      %s\n", styles.Faint.Render(line))
			}
		}
	}
}
