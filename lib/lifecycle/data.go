// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
)

// DataList reports the data entries selection matches, in spec order.
// Nothing is modified.
func (d *Driver) DataList(spec wrangler.EnvironmentSpec, selection *selector.Selector) ([]DataState, error) {
	states, err := d.inspectData(spec)
	if err != nil {
		return nil, err
	}
	var selected []DataState
	for _, data := range states {
		if selection.Match(data.Name) {
			selected = append(selected, data)
		}
	}
	return selected, nil
}

// DataValidate checks that every selected data entry is pinned and
// fetched, with content matching its pin. The returned states are
// valid whether or not validation passed.
func (d *Driver) DataValidate(spec wrangler.EnvironmentSpec, selection *selector.Selector) ([]DataState, error) {
	states, err := d.DataList(spec, selection)
	if err != nil {
		return nil, &LifecycleError{Transition: DataValidate, Environment: spec.ID, Err: err}
	}
	var problems []string
	for _, data := range states {
		switch {
		case !data.Pinned:
			problems = append(problems, data.Name+": not curated (run data-curate)")
		case data.Present:
		case exists(data.Destination):
			problems = append(problems, data.Name+": "+data.Destination+" does not match its pin")
		default:
			problems = append(problems, data.Name+": not fetched (run packages-install)")
		}
	}
	d.logger.Info("data validated", "environment", spec.ID, "entries", len(states), "problems", len(problems))
	if len(problems) > 0 {
		return states, &LifecycleError{
			Transition: DataValidate, Environment: spec.ID,
			Err: fmt.Errorf("%w: %s", ErrDataInvalid, strings.Join(problems, "; ")),
		}
	}
	return states, nil
}

// DataDelete removes the fetched files of the selected data entries,
// matching their pin or not. Fetching again is packages-install.
func (d *Driver) DataDelete(ctx context.Context, spec wrangler.EnvironmentSpec, selection *selector.Selector) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: DataDelete,
		done: func(state StateSet) bool {
			return len(fetchedData(state, selection)) == 0
		},
		apply: func(_ context.Context, state StateSet) error {
			for _, destination := range fetchedData(state, selection) {
				if err := os.Remove(destination); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("removing %s: %w", destination, err)
				}
				d.logger.Info("data removed", "environment", spec.ID, "path", destination)
			}
			return nil
		},
	})
}

// fetchedData returns the destinations of selected data entries that
// exist on disk.
func fetchedData(state StateSet, selection *selector.Selector) []string {
	var paths []string
	for _, data := range state.Data {
		if selection.Match(data.Name) && exists(data.Destination) {
			paths = append(paths, data.Destination)
		}
	}
	return paths
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// DeleteRepos removes the local clones of every repository the
// environment references, its deployment repository included, and
// returns the removed clone directories. Clones are shared by URL, so
// other environments referencing the same repositories lose them too.
func (d *Driver) DeleteRepos(ctx context.Context, spec wrangler.EnvironmentSpec) ([]string, error) {
	fail := func(err error) ([]string, error) {
		return nil, &LifecycleError{Transition: DeleteRepos, Environment: spec.ID, Err: err}
	}
	if d.locker != nil {
		lock, err := d.locker.Acquire(ctx, envlock.EnvironmentLockName(spec.ID))
		if err != nil {
			return fail(err)
		}
		defer lock.Release()
	}

	references := References(spec)
	if spec.Deployment.Repository != "" {
		references = append(references, repos.Reference{Name: "deployment", URL: spec.Deployment.Repository})
	}
	var removed []string
	for _, reference := range references {
		status, err := d.repositories.Status(ctx, reference)
		if err != nil {
			return fail(err)
		}
		gone, err := d.repositories.Remove(ctx, reference)
		if err != nil {
			return fail(err)
		}
		if gone {
			removed = append(removed, status.Dir)
		}
	}
	d.logger.Info("repositories deleted", "environment", spec.ID, "removed", len(removed))
	return removed, nil
}
