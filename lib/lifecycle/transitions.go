// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// CloneRepos materializes every referenced repository at its revision.
// Branch and tag revisions are fetched on every call; commit revisions
// already checked out are left alone.
func (d *Driver) CloneRepos(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	fetched := false
	return d.run(ctx, spec, step{
		transition: CloneRepos,
		done: func(state StateSet) bool {
			if !state.Has(StateReposCloned) {
				return false
			}
			// Floating revisions need one fetch per call.
			return fetched || allPinned(state.Repositories)
		},
		apply: func(ctx context.Context, _ StateSet) error {
			for _, reference := range References(spec) {
				if _, err := d.cloneWithRetry(ctx, reference); err != nil {
					return err
				}
			}
			fetched = true
			return nil
		},
	})
}

func allPinned(repositories []RepositoryState) bool {
	for _, repository := range repositories {
		if !repository.AtRevision {
			return false
		}
	}
	return true
}

// cloneWithRetry retries retryable clone failures with doubling
// backoff.
func (d *Driver) cloneWithRetry(ctx context.Context, reference repos.Reference) (*repos.CloneResult, error) {
	backoff := d.cloneBackoff
	for attempt := 1; ; attempt++ {
		result, err := d.repositories.Clone(ctx, reference)
		if err == nil {
			return result, nil
		}
		var cloneErr *repos.CloneError
		retryable := errors.As(err, &cloneErr) && cloneErr.Retryable()
		if !retryable || attempt >= d.cloneAttempts {
			return nil, err
		}
		d.logger.Warn("clone failed, retrying",
			"repository", reference.Name, "attempt", attempt, "backoff", backoff, "error", err)
		if err := clock.Wait(ctx, d.clock, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// PackagesCompile builds a wheel from each vcs package's clone.
func (d *Driver) PackagesCompile(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: PackagesCompile,
		done:       func(state StateSet) bool { return state.Has(StateCompiled) },
		ready:      requireState(StateReposCloned),
		apply: func(ctx context.Context, state StateSet) error {
			for _, entry := range vcsPackages(spec) {
				repository, ok := findRepository(state, entry.Name, entry.URL)
				if !ok {
					return fmt.Errorf("%w: no clone of %s", ErrPrecondition, entry.Name)
				}
				if _, err := d.packages.BuildWheel(ctx, entry.Name, repository.Dir, d.wheelDir(spec.ID)); err != nil {
					return err
				}
				if err := os.WriteFile(d.sourceMarker(spec.ID, entry.Name), []byte(repository.Commit+"\n"), 0o644); err != nil {
					return fmt.Errorf("recording source commit of %s: %w", entry.Name, err)
				}
			}
			return nil
		},
	})
}

func findRepository(state StateSet, name, url string) (RepositoryState, bool) {
	for _, repository := range state.Repositories {
		if repository.Name == name && repository.URL == url {
			return repository, true
		}
	}
	return RepositoryState{}, false
}

// PackagesInstall installs the curated spec into its prefix and
// fetches its pinned data.
func (d *Driver) PackagesInstall(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: PackagesInstall,
		done: func(state StateSet) bool {
			return state.Has(StateInstalled) && state.Has(StateDataFetched)
		},
		ready: func(StateSet) error {
			if !spec.FullyCurated(wrangler.FlavorSpec) || !spec.Curation.Curated {
				return fmt.Errorf("%w: run curate first", ErrNotCurated)
			}
			return nil
		},
		apply: func(ctx context.Context, state StateSet) error {
			if !state.Has(StateInstalled) {
				if err := d.packages.Install(ctx, spec, state.Wheels); err != nil {
					return err
				}
			}
			return d.fetchData(ctx, spec, state)
		},
	})
}

func (d *Driver) fetchData(ctx context.Context, spec wrangler.EnvironmentSpec, state StateSet) error {
	for index, data := range state.Data {
		if !data.Pinned {
			d.logger.Warn("skipping uncurated data entry", "environment", spec.ID, "entry", data.Name)
			continue
		}
		if data.Present {
			continue
		}
		if d.data == nil {
			return fmt.Errorf("no data fetcher configured for %s", data.Name)
		}
		entry := spec.Data[index]
		if err := d.data.Fetch(ctx, entry.URL, entry.Constraint, data.Destination); err != nil {
			return fmt.Errorf("fetching data %s: %w", entry.Name, err)
		}
	}
	return nil
}

// PackagesUninstall removes the environment's prefix.
func (d *Driver) PackagesUninstall(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: PackagesUninstall,
		done:       func(state StateSet) bool { return !state.Install.Exists },
		apply: func(ctx context.Context, _ StateSet) error {
			return d.packages.Uninstall(ctx, spec.ID)
		},
	})
}

// EnvPack archives the installed prefix.
func (d *Driver) EnvPack(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	format := d.ArchiveFormat(spec)
	return d.run(ctx, spec, step{
		transition: EnvPack,
		done: func(state StateSet) bool {
			return state.Archive == archive.Path(d.archiveDir, spec.ID, format)
		},
		ready: requireExists,
		apply: func(ctx context.Context, _ StateSet) error {
			if !wrangler.ValidArchiveFormat(format) {
				return fmt.Errorf("unsupported archive format %q", format)
			}
			_, err := d.packages.Pack(ctx, spec.ID, archive.Path(d.archiveDir, spec.ID, format), format, d.clock.Now())
			return err
		},
	})
}

// EnvUnpack materializes the prefix from a packed archive.
func (d *Driver) EnvUnpack(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: EnvUnpack,
		done:       func(state StateSet) bool { return state.Install.Exists },
		ready:      requireState(StatePacked),
		apply: func(ctx context.Context, state StateSet) error {
			_, err := d.packages.Unpack(ctx, spec.ID, state.Archive)
			return err
		},
	})
}

// EnvCompact removes caches from the installed prefix.
func (d *Driver) EnvCompact(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: EnvCompact,
		done:       func(state StateSet) bool { return state.Has(StateCompacted) },
		ready:      requireExists,
		apply: func(ctx context.Context, _ StateSet) error {
			_, err := d.packages.Compact(ctx, spec.ID)
			return err
		},
	})
}

// EnvRegister exposes the installed prefix as a kernel.
func (d *Driver) EnvRegister(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: EnvRegister,
		done:       func(state StateSet) bool { return state.Has(StateRegistered) },
		ready:      requireExists,
		apply: func(context.Context, StateSet) error {
			return d.kernels.Register(spec, d.packages.Prefix(spec.ID))
		},
	})
}

// EnvUnregister withdraws the kernel.
func (d *Driver) EnvUnregister(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: EnvUnregister,
		done:       func(state StateSet) bool { return !state.KernelPresent },
		apply: func(context.Context, StateSet) error {
			return d.kernels.Unregister(spec.ID)
		},
	})
}

// EnvDelete removes the environment's kernel, prefix, archive, and
// wheels. Clones are shared between environments and are kept.
func (d *Driver) EnvDelete(ctx context.Context, spec wrangler.EnvironmentSpec) (*Outcome, error) {
	return d.run(ctx, spec, step{
		transition: EnvDelete,
		done: func(state StateSet) bool {
			_, err := os.Stat(d.wheelDir(spec.ID))
			return !state.KernelPresent && !state.Install.Exists && state.Archive == "" && os.IsNotExist(err)
		},
		apply: func(ctx context.Context, state StateSet) error {
			if err := d.kernels.Unregister(spec.ID); err != nil {
				return err
			}
			if err := d.packages.Uninstall(ctx, spec.ID); err != nil {
				return err
			}
			for _, format := range wrangler.ArchiveFormats {
				archivePath := archive.Path(d.archiveDir, spec.ID, format)
				for _, path := range []string{archivePath, archive.ManifestPath(archivePath)} {
					if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
						return err
					}
				}
			}
			return os.RemoveAll(d.wheelDir(spec.ID))
		},
	})
}

// CleanupKernels unregisters kernels whose environment no longer
// exists. It is not tied to one environment.
func (d *Driver) CleanupKernels(ctx context.Context) ([]string, error) {
	fail := func(err error) ([]string, error) {
		return nil, &LifecycleError{Transition: EnvKernelCleanup, Environment: "*", Err: err}
	}
	orphans, err := d.kernels.Orphans()
	if err != nil {
		return fail(err)
	}
	for _, name := range orphans {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := d.kernels.Unregister(name); err != nil {
			return fail(err)
		}
		d.logger.Info("removed orphaned kernel", "kernel", name)
	}
	remaining, err := d.kernels.Orphans()
	if err != nil {
		return fail(err)
	}
	if len(remaining) > 0 {
		return fail(fmt.Errorf("%w: orphans remain: %v", ErrPostcondition, remaining))
	}
	return orphans, nil
}

func requireState(required State) func(StateSet) error {
	return func(state StateSet) error {
		if !state.Has(required) {
			return fmt.Errorf("%w: environment is not %s", ErrPrecondition, required)
		}
		return nil
	}
}

func requireExists(state StateSet) error {
	if !state.Install.Exists {
		return fmt.Errorf("%w: environment is not installed at %s", ErrPrecondition, state.Install.Prefix)
	}
	return nil
}
