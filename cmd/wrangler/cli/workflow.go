// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

// WorkflowParams is the parameter set of every workflow command.
type WorkflowParams struct {
	LogOptions
	JSONOutput
	ColorOptions
	SpecOptions
	CloneOptions

	Select string `flag:"select" desc:"only entries matching this selector (a|b|c or a regular expression)"`
}

// WorkflowFunc runs one workflow against one spec file.
type WorkflowFunc func(ctx context.Context, runner *workflow.Runner, path string, options workflow.Options) (*workflow.Report, error)

// RunWorkflow runs fn for every spec file the arguments name, up to
// --parallel at once, and reports each file's outcome. Every file runs
// even when others fail.
func RunWorkflow(ctx context.Context, logger *slog.Logger, params *WorkflowParams, args []string, fn WorkflowFunc) error {
	paths, err := params.SpecPaths(args)
	if err != nil {
		return err
	}
	options := params.WorkflowOptions()
	if params.Select != "" {
		compiled, err := selector.Compile(params.Select)
		if err != nil {
			return Validation("--select: %v", err)
		}
		options.Selector = compiled
	}
	styles, err := params.NewStyles(os.Stdout)
	if err != nil {
		return err
	}
	toolchain, err := params.Prepare(logger, params.CloneOptions.Apply)
	if err != nil {
		return err
	}

	positions := make(map[string]int, len(paths))
	for index, path := range paths {
		positions[path] = index
	}
	reports := make([]*workflow.Report, len(paths))
	runErr := workflow.ForEach(ctx, paths, params.Parallel, func(ctx context.Context, path string) error {
		specLogger := logger.With("spec", path)
		report, err := fn(ctx, toolchain.Workflows, path, options)
		reports[positions[path]] = report
		if report != nil {
			for _, entry := range report.Degraded {
				specLogger.Warn("reset without original constraint; entry left at its pin", "entry", entry)
			}
		}
		if err != nil {
			specLogger.Error("workflow failed", "error", err)
			return err
		}
		specLogger.Info("workflow complete", "changes", report.Changes, "saved", report.Saved)
		return nil
	})

	completed := make([]*workflow.Report, 0, len(reports))
	for _, report := range reports {
		if report != nil {
			completed = append(completed, report)
		}
	}
	if done, err := params.EmitJSON(completed); done {
		if err != nil {
			return err
		}
		return runErr
	}
	for _, report := range completed {
		PrintWorkflowReport(os.Stdout, styles, report)
	}
	return runErr
}

// PrintWorkflowReport writes a human-readable summary of one report.
func PrintWorkflowReport(w io.Writer, styles *Styles, report *workflow.Report) {
	status := "unchanged"
	if report.Saved {
		status = "saved"
	}
	fmt.Fprintf(w, "%s  %s\n", styles.Headingf("%s", report.Spec),
		styles.Faint.Render(fmt.Sprintf("%d changed, %s", report.Changes, status)))
	for _, outcome := range report.Outcomes {
		PrintOutcome(w, styles, outcome)
	}
	for _, entry := range report.Degraded {
		fmt.Fprintf(w, "  %s %s: original constraint unknown, curated flag cleared\n", styles.Warn.Render("warning"), entry)
	}
}

// PrintOutcome writes one transition outcome line.
func PrintOutcome(w io.Writer, styles *Styles, outcome *lifecycle.Outcome) {
	verb := styles.Pass.Render("done")
	if outcome.Skipped {
		verb = styles.Faint.Render("skipped")
	}
	fmt.Fprintf(w, "  %-20s %-24s %s  %s\n", outcome.Transition, outcome.Environment, verb,
		styles.State.Render(FormatStates(outcome.State.States())))
}

// FormatStates joins states for display.
func FormatStates(states []lifecycle.State) string {
	names := make([]string, len(states))
	for index, state := range states {
		names[index] = string(state)
	}
	return strings.Join(names, ", ")
}
