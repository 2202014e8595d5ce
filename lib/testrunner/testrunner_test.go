// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testrunner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

func moduleError(module string) error {
	return &toolexec.Error{
		Command:  "python -c import " + module,
		ExitCode: 1,
		Stderr:   "ModuleNotFoundError: No module named '" + module + "'",
		Err:      errors.New("exit status 1"),
	}
}

func TestRunImports(t *testing.T) {
	t.Parallel()

	tools := &toolexec.Fake{}
	tools.On("/envs/e/bin/python -c import romancal", "", moduleError("romancal"))
	runner := New(Config{Tools: tools, Jobs: 2})

	report, err := runner.RunImports(context.Background(), ImportRequest{
		Environment: "e",
		Python:      "/envs/e/bin/python",
		Modules:     []string{"numpy", "romancal", "astropy"},
	})
	if err != nil {
		t.Fatalf("RunImports: %v", err)
	}

	var targets []string
	for _, result := range report.Results {
		targets = append(targets, result.Target)
	}
	if diff := cmp.Diff([]string{"numpy", "romancal", "astropy"}, targets); diff != "" {
		t.Errorf("results out of target order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"romancal"}, report.Failed()); diff != "" {
		t.Errorf("Failed (-want +got):\n%s", diff)
	}
	if !strings.Contains(report.Results[1].Output, "No module named 'romancal'") {
		t.Errorf("failure output = %q", report.Results[1].Output)
	}

	var failure *TestFailure
	if err := report.Failure(); !errors.As(err, &failure) {
		t.Fatalf("Failure() = %v, want *TestFailure", err)
	}
	if failure.Total != 3 || failure.Kind != KindImports {
		t.Errorf("failure = %+v", failure)
	}
	if want := "e: 1 of 3 imports failed: romancal"; failure.Error() != want {
		t.Errorf("Error() = %q, want %q", failure.Error(), want)
	}
}

func TestRunImports_AllPass(t *testing.T) {
	t.Parallel()

	runner := New(Config{Tools: &toolexec.Fake{}})
	report, err := runner.RunImports(context.Background(), ImportRequest{
		Environment: "e", Python: "python", Modules: []string{"numpy"},
	})
	if err != nil {
		t.Fatalf("RunImports: %v", err)
	}
	if !report.Passed() || report.Failure() != nil {
		t.Errorf("report = %+v, want passing", report)
	}
}

func TestRunNotebooks_Invocation(t *testing.T) {
	t.Parallel()

	tools := &toolexec.Fake{}
	runner := New(Config{Tools: tools})
	_, err := runner.RunNotebooks(context.Background(), NotebookRequest{
		Environment: "roman-cal",
		Kernel:      "roman-cal",
		Notebooks:   []Notebook{{Name: "roman_notebooks/notebooks/intro.ipynb", Path: "/repos/roman/notebooks/intro.ipynb"}},
		OutputDir:   "/out",
		Timeout:     time.Minute,
	})
	if err != nil {
		t.Fatalf("RunNotebooks: %v", err)
	}

	invocations := tools.Invocations()
	if len(invocations) != 1 {
		t.Fatalf("invocations = %d, want 1", len(invocations))
	}
	want := "jupyter nbconvert --to notebook --execute --ExecutePreprocessor.kernel_name=roman-cal " +
		"--ExecutePreprocessor.timeout=-1 --output-dir /out --output roman_notebooks__notebooks__intro " +
		"/repos/roman/notebooks/intro.ipynb"
	if got := invocations[0].String(); got != want {
		t.Errorf("invocation = %q\nwant %q", got, want)
	}
	if invocations[0].Dir != "/repos/roman/notebooks" || invocations[0].Timeout != time.Minute {
		t.Errorf("invocation dir/timeout = %s/%v", invocations[0].Dir, invocations[0].Timeout)
	}
}

// limitRunner records the peak number of concurrent invocations.
type limitRunner struct {
	active, peak atomic.Int32
}

func (l *limitRunner) Run(ctx context.Context, invocation toolexec.Invocation) (string, error) {
	current := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return "", nil
}

func TestRun_RespectsJobLimit(t *testing.T) {
	t.Parallel()

	tools := &limitRunner{}
	runner := New(Config{Tools: tools, Jobs: 2})
	modules := make([]string, 12)
	for index := range modules {
		modules[index] = "m"
	}
	if _, err := runner.RunImports(context.Background(), ImportRequest{Environment: "e", Python: "python", Modules: modules}); err != nil {
		t.Fatalf("RunImports: %v", err)
	}
	if peak := tools.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestRun_InfrastructureErrorIsReturned(t *testing.T) {
	t.Parallel()

	tools := &toolexec.Fake{}
	tools.On("jupyter", "", errors.New("jupyter not found on PATH"))
	runner := New(Config{Tools: tools})

	_, err := runner.RunNotebooks(context.Background(), NotebookRequest{
		Environment: "e", Kernel: "e", Notebooks: []Notebook{{Name: "n", Path: "/n.ipynb"}},
	})
	if err == nil || !strings.Contains(err.Error(), "jupyter not found") {
		t.Fatalf("RunNotebooks error = %v, want the missing-binary error", err)
	}
}
