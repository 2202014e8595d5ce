// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/kernel"
	"github.com/bureau-foundation/wrangler/lib/mamba"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/testrunner"
)

// Transition names a lifecycle operation.
type Transition string

const (
	CloneRepos        Transition = "clone-repos"
	PackagesCompile   Transition = "packages-compile"
	PackagesInstall   Transition = "packages-install"
	PackagesUninstall Transition = "packages-uninstall"
	EnvPack           Transition = "env-pack"
	EnvUnpack         Transition = "env-unpack"
	EnvCompact        Transition = "env-compact"
	EnvRegister       Transition = "env-register"
	EnvUnregister     Transition = "env-unregister"
	EnvDelete         Transition = "env-delete"
	EnvKernelCleanup  Transition = "env-kernel-cleanup"
	TestImports       Transition = "test-imports"
	TestNotebooks     Transition = "test-notebooks"
	DataValidate      Transition = "data-validate"
	DataDelete        Transition = "data-delete"
	DeleteRepos       Transition = "delete-repos"
)

// PackageManager realizes environments. *mamba.Manager implements it.
type PackageManager interface {
	Prefix(environmentID string) string
	Python(environmentID string) string
	Probe(spec wrangler.EnvironmentSpec) (mamba.ProbeResult, error)
	Install(ctx context.Context, spec wrangler.EnvironmentSpec, wheels map[string]string) error
	Uninstall(ctx context.Context, environmentID string) error
	BuildWheel(ctx context.Context, name, sourceDir, outputDir string) (string, error)
	Pack(ctx context.Context, environmentID, archivePath, format string, created time.Time) (*archive.Manifest, error)
	Unpack(ctx context.Context, environmentID, archivePath string) (*archive.Manifest, error)
	Compact(ctx context.Context, environmentID string) (mamba.CompactResult, error)
	CompactionCandidates(environmentID string) (int, error)
}

// KernelRegistry exposes environments as kernels. *kernel.Registry
// implements it.
type KernelRegistry interface {
	Register(spec wrangler.EnvironmentSpec, prefix string) error
	Unregister(name string) error
	Lookup(name string) (*kernel.Spec, bool, error)
	Registered(environmentID, prefix string) (bool, error)
	Orphans() ([]string, error)
}

// Cloner materializes repositories. *repos.Manager implements it.
type Cloner interface {
	Clone(ctx context.Context, reference repos.Reference) (*repos.CloneResult, error)
	Status(ctx context.Context, reference repos.Reference) (repos.Status, error)
	Remove(ctx context.Context, reference repos.Reference) (bool, error)
}

// DataFetcher downloads pinned data. *resolver.Data implements it.
type DataFetcher interface {
	Fetch(ctx context.Context, location, pin, destination string) error
}

// Verifier runs import and notebook checks. *testrunner.Runner
// implements it.
type Verifier interface {
	RunImports(ctx context.Context, request testrunner.ImportRequest) (*testrunner.TestReport, error)
	RunNotebooks(ctx context.Context, request testrunner.NotebookRequest) (*testrunner.TestReport, error)
}

// Config configures a Driver.
type Config struct {
	Packages     PackageManager
	Kernels      KernelRegistry
	Repositories Cloner
	Data         DataFetcher
	Verifier     Verifier

	// Locker serializes transitions per environment. Nil disables
	// locking.
	Locker *envlock.Locker

	Clock clock.Clock

	// ArchiveDir holds packed environments.
	ArchiveDir string

	// ArchiveFormat is used when a spec sets no archive_format.
	ArchiveFormat string

	// Wheelhouse holds compiled wheels, one directory per environment.
	Wheelhouse string

	// DataDir receives data entries without an install_path.
	DataDir string

	// TestOutputDir receives executed notebooks.
	TestOutputDir string

	// CloneAttempts is how many times a retryable clone is tried.
	CloneAttempts int

	// CloneBackoff is the delay before the first clone retry. It
	// doubles after each attempt.
	CloneBackoff time.Duration

	// ImportTimeout and NotebookTimeout bound each verification target.
	ImportTimeout   time.Duration
	NotebookTimeout time.Duration

	Logger *slog.Logger
}

// Driver runs lifecycle transitions.
type Driver struct {
	packages     PackageManager
	kernels      KernelRegistry
	repositories Cloner
	data         DataFetcher
	verifier     Verifier
	locker       *envlock.Locker
	clock        clock.Clock

	archiveDir    string
	archiveFormat string
	wheelhouse    string
	dataDir       string
	testOutputDir string

	cloneAttempts   int
	cloneBackoff    time.Duration
	importTimeout   time.Duration
	notebookTimeout time.Duration

	logger *slog.Logger
}

// New returns a Driver.
func New(config Config) *Driver {
	driver := &Driver{
		packages:        config.Packages,
		kernels:         config.Kernels,
		repositories:    config.Repositories,
		data:            config.Data,
		verifier:        config.Verifier,
		locker:          config.Locker,
		clock:           config.Clock,
		archiveDir:      config.ArchiveDir,
		archiveFormat:   config.ArchiveFormat,
		wheelhouse:      config.Wheelhouse,
		dataDir:         config.DataDir,
		testOutputDir:   config.TestOutputDir,
		cloneAttempts:   config.CloneAttempts,
		cloneBackoff:    config.CloneBackoff,
		importTimeout:   config.ImportTimeout,
		notebookTimeout: config.NotebookTimeout,
		logger:          config.Logger,
	}
	if driver.clock == nil {
		driver.clock = clock.Real()
	}
	if driver.archiveFormat == "" {
		driver.archiveFormat = wrangler.ArchiveTarZstd
	}
	if driver.cloneAttempts < 1 {
		driver.cloneAttempts = 1
	}
	if driver.logger == nil {
		driver.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return driver
}

// Outcome reports a completed transition.
type Outcome struct {
	Transition  Transition `json:"transition"`
	Environment string     `json:"environment"`

	// Skipped is true when the postcondition already held and nothing
	// was done.
	Skipped bool `json:"skipped"`

	// State is the re-probed state after the transition.
	State StateSet `json:"state"`
}

// step is one transition's definition.
type step struct {
	transition Transition

	// done is the postcondition.
	done func(StateSet) bool

	// ready checks the precondition; nil means none.
	ready func(StateSet) error

	// apply performs the side effect.
	apply func(context.Context, StateSet) error
}

// run executes a step under the environment lock with the probe-first,
// probe-after discipline.
func (d *Driver) run(ctx context.Context, spec wrangler.EnvironmentSpec, s step) (*Outcome, error) {
	fail := func(err error) (*Outcome, error) {
		return nil, &LifecycleError{Transition: s.transition, Environment: spec.ID, Err: err}
	}
	logger := d.logger.With("transition", s.transition, "environment", spec.ID)

	if d.locker != nil {
		lock, err := d.locker.Acquire(ctx, envlock.EnvironmentLockName(spec.ID))
		if err != nil {
			return fail(err)
		}
		defer lock.Release()
	}

	state, err := d.Probe(ctx, spec)
	if err != nil {
		return fail(err)
	}
	if s.done(state) {
		logger.Debug("postcondition already holds")
		return &Outcome{Transition: s.transition, Environment: spec.ID, Skipped: true, State: state}, nil
	}
	if s.ready != nil {
		if err := s.ready(state); err != nil {
			return fail(err)
		}
	}

	logger.Info("transition started")
	start := d.clock.Now()
	if err := s.apply(ctx, state); err != nil {
		return fail(err)
	}

	state, err = d.Probe(ctx, spec)
	if err != nil {
		return fail(err)
	}
	if !s.done(state) {
		return fail(ErrPostcondition)
	}
	logger.Info("transition finished", "duration", d.clock.Now().Sub(start))
	return &Outcome{Transition: s.transition, Environment: spec.ID, State: state}, nil
}
