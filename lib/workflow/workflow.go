// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/wrangler/lib/curation"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/specstore"
)

// Lifecycle is the subset of *lifecycle.Driver workflows drive.
type Lifecycle interface {
	CloneRepos(ctx context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)
	PackagesCompile(ctx context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)
	PackagesInstall(ctx context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)
	EnvRegister(ctx context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)
	EnvDelete(ctx context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)
}

// Config configures a Runner.
type Config struct {
	Engine    *curation.Engine
	Lifecycle Lifecycle
	Logger    *slog.Logger
}

// Runner executes workflows.
type Runner struct {
	engine    *curation.Engine
	lifecycle Lifecycle
	logger    *slog.Logger
}

// New returns a Runner.
func New(config Config) *Runner {
	runner := &Runner{engine: config.Engine, lifecycle: config.Lifecycle, logger: config.Logger}
	if runner.logger == nil {
		runner.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return runner
}

// Options scopes a workflow.
type Options struct {
	// Selector restricts curation and reset to matching entry names.
	// Nil selects every entry.
	Selector *selector.Selector

	// Environments restricts the workflow to the named environments.
	// Empty means every environment in the spec.
	Environments []string
}

// Report is what a workflow did to one spec file.
type Report struct {
	Spec string `json:"spec"`

	// Saved is true when the spec file was rewritten.
	Saved bool `json:"saved"`

	// Changes counts entries pinned or reset.
	Changes int `json:"changes"`

	// Degraded lists entries reset without their original constraint.
	Degraded []string `json:"degraded,omitempty"`

	Outcomes []*lifecycle.Outcome `json:"outcomes,omitempty"`
}

type transition func(context.Context, wrangler.EnvironmentSpec) (*lifecycle.Outcome, error)

// Curate clones repositories, pins the spec, saves it, then compiles,
// installs, and registers each environment. Every environment in scope
// must pass validation before anything runs.
func (r *Runner) Curate(ctx context.Context, path string, options Options) (*Report, error) {
	document, err := specstore.Load(path)
	if err != nil {
		return nil, err
	}
	report := &Report{Spec: path}
	environments, err := Scope(document, options)
	if err != nil {
		return report, err
	}
	for _, environment := range environments {
		if err := requireValid(environment); err != nil {
			return report, err
		}
	}
	if err := r.each(ctx, report, environments, r.lifecycle.CloneRepos); err != nil {
		return report, err
	}

	result, err := r.engine.Curate(ctx, document, curation.Options{
		Flavor:       wrangler.FlavorSpec,
		Selector:     options.Selector,
		Environments: options.Environments,
	})
	if err != nil {
		return report, err
	}
	if err := r.record(report, result, path); err != nil {
		return report, err
	}

	environments, err = Scope(result.Document, options)
	if err != nil {
		return report, err
	}
	return report, r.each(ctx, report, environments,
		r.lifecycle.PackagesCompile, r.lifecycle.PackagesInstall, r.lifecycle.EnvRegister)
}

// Reinstall rebuilds each environment from an already curated spec:
// clone at the pinned revisions, compile, install, register. The spec
// is not modified.
func (r *Runner) Reinstall(ctx context.Context, path string, options Options) (*Report, error) {
	document, err := specstore.Load(path)
	if err != nil {
		return nil, err
	}
	report := &Report{Spec: path}
	environments, err := Scope(document, options)
	if err != nil {
		return report, err
	}
	for _, environment := range environments {
		if err := requireCurated(environment); err != nil {
			return report, err
		}
	}
	return report, r.each(ctx, report, environments,
		r.lifecycle.CloneRepos, r.lifecycle.PackagesCompile, r.lifecycle.PackagesInstall, r.lifecycle.EnvRegister)
}

// ResetCuration deletes each environment's install, then un-pins its
// spec entries and saves.
func (r *Runner) ResetCuration(ctx context.Context, path string, options Options) (*Report, error) {
	document, err := specstore.Load(path)
	if err != nil {
		return nil, err
	}
	report := &Report{Spec: path}
	environments, err := Scope(document, options)
	if err != nil {
		return report, err
	}
	if err := r.each(ctx, report, environments, r.lifecycle.EnvDelete); err != nil {
		return report, err
	}
	result, err := r.engine.Reset(document, curation.Options{
		Flavor:       wrangler.FlavorSpec,
		Selector:     options.Selector,
		Environments: options.Environments,
	})
	if err != nil {
		return report, err
	}
	return report, r.record(report, result, path)
}

// DataCurate pins the selected data entries and saves.
func (r *Runner) DataCurate(ctx context.Context, path string, options Options) (*Report, error) {
	return r.edit(path, func(document *specstore.Document) (*curation.Result, error) {
		return r.engine.Curate(ctx, document, curation.Options{
			Flavor:       wrangler.FlavorData,
			Selector:     options.Selector,
			Environments: options.Environments,
		})
	})
}

// DataReset un-pins the selected data entries and saves.
func (r *Runner) DataReset(_ context.Context, path string, options Options) (*Report, error) {
	return r.edit(path, func(document *specstore.Document) (*curation.Result, error) {
		return r.engine.Reset(document, curation.Options{
			Flavor:       wrangler.FlavorData,
			Selector:     options.Selector,
			Environments: options.Environments,
		})
	})
}

// SpecReset un-pins every spec entry of each environment and drops
// its curation block. Data entries keep their pins.
func (r *Runner) SpecReset(_ context.Context, path string, options Options) (*Report, error) {
	return r.edit(path, func(document *specstore.Document) (*curation.Result, error) {
		environments, err := Scope(document, options)
		if err != nil {
			return nil, err
		}
		combined := &curation.Result{Document: document}
		for _, environment := range environments {
			result, err := r.engine.ResetEnvironment(combined.Document, environment.ID)
			if err != nil {
				return nil, err
			}
			combined.Document = result.Document
			combined.Changes = append(combined.Changes, result.Changes...)
			combined.Warnings = append(combined.Warnings, result.Warnings...)
			combined.Changed = combined.Changed || result.Changed
		}
		return combined, nil
	})
}

// SpecUpdate recomputes environment fingerprints, accepting the spec's
// current content as curated, and saves when any changed.
func (r *Runner) SpecUpdate(_ context.Context, path string) (*Report, error) {
	return r.edit(path, func(document *specstore.Document) (*curation.Result, error) {
		updated, changed, err := curation.Refresh(document)
		if err != nil {
			return nil, err
		}
		return &curation.Result{Document: updated, Changed: changed}, nil
	})
}

// edit loads the spec, applies one document edit, and saves.
func (r *Runner) edit(path string, apply func(*specstore.Document) (*curation.Result, error)) (*Report, error) {
	document, err := specstore.Load(path)
	if err != nil {
		return nil, err
	}
	report := &Report{Spec: path}
	result, err := apply(document)
	if err != nil {
		return report, err
	}
	return report, r.record(report, result, path)
}

// record folds a curation result into the report and saves the
// document when it changed.
func (r *Runner) record(report *Report, result *curation.Result, path string) error {
	report.Changes += len(result.Changes)
	for _, warning := range result.Warnings {
		report.Degraded = append(report.Degraded, warning.Environment+"/"+warning.Entry)
	}
	if !result.Changed {
		return nil
	}
	if err := specstore.Save(result.Document, path); err != nil {
		return err
	}
	report.Saved = true
	r.logger.Info("spec saved", "spec", path, "changes", len(result.Changes))
	return nil
}

// each runs the transitions in order for every environment, stopping
// at the first failure.
func (r *Runner) each(ctx context.Context, report *Report, environments []wrangler.EnvironmentSpec, transitions ...transition) error {
	for _, environment := range environments {
		for _, run := range transitions {
			outcome, err := run(ctx, environment)
			if err != nil {
				return err
			}
			report.Outcomes = append(report.Outcomes, outcome)
		}
	}
	return nil
}

// Scope returns the environments options selects from document, in
// document order when no filter is given and in filter order otherwise.
func Scope(document *specstore.Document, options Options) ([]wrangler.EnvironmentSpec, error) {
	if len(options.Environments) == 0 {
		return document.Environments(), nil
	}
	var environments []wrangler.EnvironmentSpec
	for _, id := range options.Environments {
		environment, ok := document.Environment(id)
		if !ok {
			return nil, fmt.Errorf("spec %s has no environment %q (have %s): %w",
				document.Source(), id, strings.Join(document.EnvironmentIDs(), ", "), ErrUnknownEnvironment)
		}
		environments = append(environments, environment)
	}
	return environments, nil
}

// requireCurated rejects environments whose spec entries are not all
// pinned or whose content changed since curation.
func requireCurated(environment wrangler.EnvironmentSpec) error {
	if !environment.Curation.Curated || !environment.FullyCurated(wrangler.FlavorSpec) {
		return &lifecycle.LifecycleError{
			Transition: lifecycle.PackagesInstall, Environment: environment.ID,
			Err: fmt.Errorf("%w: run curate first", lifecycle.ErrNotCurated),
		}
	}
	return requireValid(environment)
}

// requireValid rejects environments with error-severity validation
// issues.
func requireValid(environment wrangler.EnvironmentSpec) error {
	var problems []error
	for _, issue := range specstore.ValidateEnvironment(environment) {
		if issue.Severity == wrangler.SeverityError {
			problems = append(problems, errors.New(issue.String()))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("environment %s: %w: %w", environment.ID, ErrInvalidEnvironment, errors.Join(problems...))
	}
	return nil
}

var (
	// ErrUnknownEnvironment means an environment filter names an
	// environment the spec does not define.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrInvalidEnvironment means an environment has error-severity
	// validation issues and no transition may run against it.
	ErrInvalidEnvironment = errors.New("environment fails validation")
)

// UnitError is the failure of one spec file in a fan-out.
type UnitError struct {
	Spec string
	Err  error
}

func (e *UnitError) Error() string { return e.Spec + ": " + e.Err.Error() }

func (e *UnitError) Unwrap() error { return e.Err }

// ForEach runs fn for each spec path with at most parallel running at
// once. Every path runs even when others fail; the failures are joined
// as *UnitError values in path order.
func ForEach(ctx context.Context, paths []string, parallel int, fn func(ctx context.Context, path string) error) error {
	if parallel < 1 {
		parallel = 1
	}
	failures := make([]error, len(paths))
	var group errgroup.Group
	group.SetLimit(parallel)
	for index, path := range paths {
		group.Go(func() error {
			if err := fn(ctx, path); err != nil {
				failures[index] = &UnitError{Spec: path, Err: err}
			}
			return nil
		})
	}
	group.Wait()
	return errors.Join(failures...)
}
