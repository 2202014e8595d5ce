// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/resolver"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/testrunner"
)

// Selection scopes a verification run. Targets must match Include and
// must not match Exclude. Nil selectors are ignored.
type Selection struct {
	Include *selector.Selector
	Exclude *selector.Selector
}

func (s Selection) keep(name string) bool {
	if s.Include != nil && !s.Include.Match(name) {
		return false
	}
	return s.Exclude == nil || !s.Exclude.Match(name)
}

// ImportModules lists the modules test-imports checks: the imports
// declared by the environment's test notebooks, or, when none are
// declared, the import names of its packages.
func ImportModules(spec wrangler.EnvironmentSpec) []string {
	seen := map[string]bool{}
	var modules []string
	add := func(module string) {
		if module != "" && !seen[module] {
			seen[module] = true
			modules = append(modules, module)
		}
	}
	for _, notebook := range spec.TestNotebooks {
		for _, module := range notebook.Imports {
			add(module)
		}
	}
	if len(modules) == 0 {
		for _, entry := range spec.Packages {
			add(strings.ReplaceAll(resolver.NormalizeName(entry.Name), "-", "_"))
		}
	}
	return modules
}

// TestImports imports each selected module in the environment's
// interpreter. A report with failures is returned together with a
// LifecycleError wrapping its *testrunner.TestFailure.
func (d *Driver) TestImports(ctx context.Context, spec wrangler.EnvironmentSpec, selection Selection) (*testrunner.TestReport, error) {
	return d.verify(ctx, spec, TestImports, func(state StateSet) (*testrunner.TestReport, error) {
		if err := requireExists(state); err != nil {
			return nil, err
		}
		var modules []string
		for _, module := range ImportModules(spec) {
			if selection.keep(module) {
				modules = append(modules, module)
			}
		}
		return d.verifier.RunImports(ctx, testrunner.ImportRequest{
			Environment: spec.ID,
			Python:      d.packages.Python(spec.ID),
			Modules:     modules,
			Timeout:     d.importTimeout,
		})
	})
}

// TestNotebooks executes each selected test notebook against the
// environment's registered kernel. Notebooks are named
// "<repository>/<path>" for selection.
func (d *Driver) TestNotebooks(ctx context.Context, spec wrangler.EnvironmentSpec, selection Selection) (*testrunner.TestReport, error) {
	return d.verify(ctx, spec, TestNotebooks, func(state StateSet) (*testrunner.TestReport, error) {
		if err := requireExists(state); err != nil {
			return nil, err
		}
		if !state.Has(StateRegistered) {
			return nil, fmt.Errorf("%w: kernel %s is not registered to this environment", ErrPrecondition, spec.ID)
		}
		var notebooks []testrunner.Notebook
		for _, test := range spec.TestNotebooks {
			name := test.Repository + "/" + test.Path
			if !selection.keep(name) {
				continue
			}
			repository, ok := findRepositoryByName(state, test.Repository)
			if !ok || !repository.Cloned() {
				return nil, fmt.Errorf("%w: repository %s is not cloned", ErrPrecondition, test.Repository)
			}
			notebooks = append(notebooks, testrunner.Notebook{
				Name: name,
				Path: filepath.Join(repository.Dir, filepath.FromSlash(test.Path)),
			})
		}
		return d.verifier.RunNotebooks(ctx, testrunner.NotebookRequest{
			Environment: spec.ID,
			Kernel:      spec.ID,
			Notebooks:   notebooks,
			OutputDir:   filepath.Join(d.testOutputDir, spec.ID),
			Timeout:     d.notebookTimeout,
		})
	})
}

func findRepositoryByName(state StateSet, name string) (RepositoryState, bool) {
	for _, repository := range state.Repositories {
		if repository.Name == name {
			return repository, true
		}
	}
	return RepositoryState{}, false
}

// verify runs a read-only check under the environment lock.
func (d *Driver) verify(ctx context.Context, spec wrangler.EnvironmentSpec, transition Transition, check func(StateSet) (*testrunner.TestReport, error)) (*testrunner.TestReport, error) {
	fail := func(err error) error {
		return &LifecycleError{Transition: transition, Environment: spec.ID, Err: err}
	}
	if d.verifier == nil {
		return nil, fail(fmt.Errorf("no verifier configured"))
	}
	if d.locker != nil {
		lock, err := d.locker.Acquire(ctx, envlock.EnvironmentLockName(spec.ID))
		if err != nil {
			return nil, fail(err)
		}
		defer lock.Release()
	}
	state, err := d.Probe(ctx, spec)
	if err != nil {
		return nil, fail(err)
	}
	report, err := check(state)
	if err != nil {
		return nil, fail(err)
	}
	d.logger.Info("verification finished",
		"transition", transition, "environment", spec.ID,
		"targets", len(report.Results), "failed", len(report.Failed()))
	if failure := report.Failure(); failure != nil {
		return report, fail(failure)
	}
	return report, nil
}
