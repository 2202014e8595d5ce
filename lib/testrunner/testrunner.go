// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

// Kind distinguishes the two verification styles.
type Kind string

const (
	KindImports   Kind = "imports"
	KindNotebooks Kind = "notebooks"
)

// Result is the outcome of one target.
type Result struct {
	Target   string        `json:"target"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`

	// Output is the tail of the tool's error output for failures.
	Output string `json:"output,omitempty"`
}

// TestReport collects the results of one run, in target order.
type TestReport struct {
	Environment string   `json:"environment"`
	Kind        Kind     `json:"kind"`
	Results     []Result `json:"results"`
}

// Failed returns the failing targets.
func (r *TestReport) Failed() []string {
	var failed []string
	for _, result := range r.Results {
		if !result.Passed {
			failed = append(failed, result.Target)
		}
	}
	return failed
}

// Passed reports whether every target passed.
func (r *TestReport) Passed() bool {
	return len(r.Failed()) == 0
}

// Failure returns a *TestFailure when any target failed, else nil.
func (r *TestReport) Failure() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &TestFailure{Environment: r.Environment, Kind: r.Kind, Failed: failed, Total: len(r.Results)}
}

// TestFailure reports that verification ran and some targets failed.
type TestFailure struct {
	Environment string
	Kind        Kind
	Failed      []string
	Total       int
}

func (e *TestFailure) Error() string {
	return fmt.Sprintf("%s: %d of %d %s failed: %s",
		e.Environment, len(e.Failed), e.Total, e.Kind, strings.Join(e.Failed, ", "))
}

// Config configures a Runner.
type Config struct {
	Tools toolexec.Runner

	// Jupyter is the jupyter binary used to execute notebooks.
	Jupyter string

	// Jobs bounds concurrent targets. Values below 1 mean 1.
	Jobs int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Runner executes verification targets.
type Runner struct {
	tools   toolexec.Runner
	jupyter string
	jobs    int
	clock   clock.Clock
	logger  *slog.Logger
}

// New returns a Runner.
func New(config Config) *Runner {
	runner := &Runner{
		tools:   config.Tools,
		jupyter: config.Jupyter,
		jobs:    config.Jobs,
		clock:   config.Clock,
		logger:  config.Logger,
	}
	if runner.jupyter == "" {
		runner.jupyter = "jupyter"
	}
	if runner.jobs < 1 {
		runner.jobs = 1
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.logger == nil {
		runner.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return runner
}

// ImportRequest asks for modules to be imported in an interpreter.
type ImportRequest struct {
	Environment string
	Python      string
	Modules     []string

	// Timeout bounds each import. Zero means unbounded.
	Timeout time.Duration
}

// RunImports imports each module in a fresh interpreter.
func (r *Runner) RunImports(ctx context.Context, request ImportRequest) (*TestReport, error) {
	targets := make([]target, len(request.Modules))
	for index, module := range request.Modules {
		targets[index] = target{
			name: module,
			invocation: toolexec.Invocation{
				Name:    request.Python,
				Args:    []string{"-c", "import " + module},
				Timeout: request.Timeout,
			},
		}
	}
	return r.run(ctx, request.Environment, KindImports, targets)
}

// Notebook is one notebook to execute.
type Notebook struct {
	// Name labels the notebook in the report (repository/path).
	Name string

	// Path is the notebook file.
	Path string
}

// NotebookRequest asks for notebooks to be executed against a kernel.
type NotebookRequest struct {
	Environment string

	// Kernel is the registered kernel name.
	Kernel    string
	Notebooks []Notebook

	// OutputDir receives executed copies. The sources are never
	// modified.
	OutputDir string

	// Timeout bounds each notebook. Zero means unbounded.
	Timeout time.Duration
}

// RunNotebooks executes each notebook with nbconvert.
func (r *Runner) RunNotebooks(ctx context.Context, request NotebookRequest) (*TestReport, error) {
	targets := make([]target, len(request.Notebooks))
	for index, notebook := range request.Notebooks {
		output := strings.NewReplacer("/", "__", " ", "_").Replace(notebook.Name)
		targets[index] = target{
			name: notebook.Name,
			invocation: toolexec.Invocation{
				Name: r.jupyter,
				Args: []string{
					"nbconvert", "--to", "notebook", "--execute",
					"--ExecutePreprocessor.kernel_name=" + request.Kernel,
					"--ExecutePreprocessor.timeout=-1",
					"--output-dir", request.OutputDir,
					"--output", strings.TrimSuffix(output, filepath.Ext(output)),
					notebook.Path,
				},
				Dir:     filepath.Dir(notebook.Path),
				Timeout: request.Timeout,
			},
		}
	}
	return r.run(ctx, request.Environment, KindNotebooks, targets)
}

type target struct {
	name       string
	invocation toolexec.Invocation
}

func (r *Runner) run(ctx context.Context, environment string, kind Kind, targets []target) (*TestReport, error) {
	report := &TestReport{Environment: environment, Kind: kind, Results: make([]Result, len(targets))}
	logger := r.logger.With("environment", environment, "kind", kind)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.jobs)
	for index, target := range targets {
		group.Go(func() error {
			start := r.clock.Now()
			_, err := r.tools.Run(groupCtx, target.invocation)
			result := Result{Target: target.name, Passed: err == nil, Duration: r.clock.Now().Sub(start)}
			if err != nil {
				var toolErr *toolexec.Error
				if !errors.As(err, &toolErr) {
					return fmt.Errorf("running %s %s: %w", kind, target.name, err)
				}
				result.Output = toolErr.Stderr
				if result.Output == "" {
					result.Output = toolErr.Error()
				}
				logger.Warn("verification target failed", "target", target.name, "exit_code", toolErr.ExitCode)
			} else {
				logger.Debug("verification target passed", "target", target.name)
			}
			report.Results[index] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	logger.Info("verification finished", "targets", len(targets), "failed", len(report.Failed()))
	return report, nil
}
