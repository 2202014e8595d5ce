// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/config"
	"github.com/bureau-foundation/wrangler/lib/curation"
	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/inject"
	"github.com/bureau-foundation/wrangler/lib/kernel"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/mamba"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/resolver"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/testrunner"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

// SpecEnvVar names spec files when no positional arguments are given.
// Multiple files are separated by the OS path list separator.
const SpecEnvVar = "WRANGLER_SPEC"

// SpecOptions is the parameter group shared by every command that
// operates on spec files.
type SpecOptions struct {
	ConfigFile   string   `flag:"config" desc:"configuration file (default $WRANGLER_CONFIG)"`
	ReposDir     string   `flag:"repos-dir" desc:"directory repositories are cloned into (overrides paths.repos)"`
	Environments []string `flag:"env,e" desc:"restrict to these environment identifiers"`
	Parallel     int      `flag:"parallel" desc:"spec files processed concurrently" default:"1"`
}

// SpecPaths returns the spec files named by args, or by WRANGLER_SPEC
// when args is empty. Duplicates are dropped, keeping the first.
func (o *SpecOptions) SpecPaths(args []string) ([]string, error) {
	candidates := args
	if len(candidates) == 0 {
		if value := strings.TrimSpace(os.Getenv(SpecEnvVar)); value != "" {
			candidates = filepath.SplitList(value)
		}
	}
	seen := make(map[string]bool, len(candidates))
	var paths []string
	for _, candidate := range candidates {
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true
		paths = append(paths, candidate)
	}
	if len(paths) == 0 {
		return nil, Validation("no spec file given (pass paths or set %s)", SpecEnvVar)
	}
	if o.Parallel < 1 {
		return nil, Validation("--parallel must be at least 1, got %d", o.Parallel)
	}
	return paths, nil
}

// WorkflowOptions converts the environment filter for lib/workflow.
func (o *SpecOptions) WorkflowOptions() workflow.Options {
	return workflow.Options{Environments: o.Environments}
}

// LoadConfig reads --config (or WRANGLER_CONFIG) and applies
// --repos-dir. The result is not yet validated; commands apply their
// own overrides first and then call [NewToolchain].
func (o *SpecOptions) LoadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.ConfigFile != "" {
		cfg, err = config.LoadFile(o.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, Validation("%v", err)
	}
	if o.ReposDir != "" {
		absolute, err := filepath.Abs(o.ReposDir)
		if err != nil {
			return nil, Validation("--repos-dir: %v", err)
		}
		cfg.Paths.Repos = absolute
	}
	return cfg, nil
}

// CloneOptions is the parameter group selecting what happens to local
// changes in existing clones.
type CloneOptions struct {
	OverwriteLocalChanges bool `flag:"overwrite-local-changes" desc:"discard local changes in clones that must move"`
	StashLocalChanges     bool `flag:"stash-local-changes" desc:"stash local changes in clones that must move"`
}

// Apply sets clone.on_local_changes from the flags.
func (o *CloneOptions) Apply(cfg *config.Config) error {
	switch {
	case o.OverwriteLocalChanges && o.StashLocalChanges:
		return Validation("--overwrite-local-changes and --stash-local-changes are mutually exclusive")
	case o.OverwriteLocalChanges:
		cfg.Clone.OnLocalChanges = string(repos.OverwriteLocalChanges)
	case o.StashLocalChanges:
		cfg.Clone.OnLocalChanges = string(repos.StashLocalChanges)
	}
	return nil
}

// Toolchain is every collaborator a command may need, built from one
// validated configuration.
type Toolchain struct {
	Config       *config.Config
	Tools        *toolexec.Exec
	Packages     *mamba.Manager
	Kernels      *kernel.Registry
	Repositories *repos.Manager
	Data         *resolver.Data
	Locker       *envlock.Locker
	Verifier     *testrunner.Runner
	Lifecycle    *lifecycle.Driver
	Engine       *curation.Engine
	Workflows    *workflow.Runner
	Injector     *inject.Injector
}

// NewToolchain validates cfg, creates its directories, and wires the
// collaborators together.
func NewToolchain(cfg *config.Config, logger *slog.Logger) (*Toolchain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration: %v", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	policy, err := repos.ParseLocalChangesPolicy(cfg.Clone.OnLocalChanges)
	if err != nil {
		return nil, Validation("%v", err)
	}

	tools := &toolexec.Exec{
		Binaries:     cfg.Binaries(),
		FallbackDirs: []string{cfg.Paths.Bin},
		Logger:       logger,
	}
	kernelDir := cfg.Paths.Kernels
	if kernelDir == "" {
		kernelDir = kernel.DefaultDir()
	}
	locker := envlock.New(cfg.Paths.Locks, clock.Real())
	data := &resolver.Data{}

	toolchain := &Toolchain{
		Config: cfg,
		Tools:  tools,
		Packages: mamba.New(mamba.Config{
			Runner: tools,
			Root:   cfg.Paths.MambaRoot,
			Logger: logger,
		}),
		Kernels: kernel.New(kernel.Config{Dir: kernelDir, Logger: logger}),
		Repositories: repos.New(repos.Config{
			Root:           cfg.Paths.Repos,
			OnLocalChanges: policy,
			Logger:         logger,
		}),
		Data:   data,
		Locker: locker,
		Verifier: testrunner.New(testrunner.Config{
			Tools:  tools,
			Jobs:   cfg.Testing.Jobs,
			Logger: logger,
		}),
		Engine: curation.New(curation.Config{
			Resolvers: map[wrangler.SourceKind]curation.Resolver{
				wrangler.SourceRegistry: &resolver.Registry{Runner: tools},
				wrangler.SourceVCS:      &resolver.VCS{Runner: tools},
				wrangler.SourceData:     data,
			},
			Logger: logger,
		}),
		Injector: inject.New(inject.Config{
			Locker: locker,
			Tools:  tools,
			Logger: logger,
		}),
	}
	toolchain.Lifecycle = lifecycle.New(lifecycle.Config{
		Packages:        toolchain.Packages,
		Kernels:         toolchain.Kernels,
		Repositories:    toolchain.Repositories,
		Data:            data,
		Verifier:        toolchain.Verifier,
		Locker:          locker,
		ArchiveDir:      cfg.Paths.Archives,
		ArchiveFormat:   cfg.Archive.Format,
		Wheelhouse:      cfg.Paths.Wheelhouse,
		DataDir:         cfg.Paths.Data,
		TestOutputDir:   filepath.Join(cfg.Paths.Root, "test-output"),
		CloneAttempts:   cfg.Clone.Attempts,
		CloneBackoff:    cfg.CloneBackoff(),
		ImportTimeout:   cfg.ImportTimeout(),
		NotebookTimeout: cfg.TestTimeout(),
		Logger:          logger,
	})
	toolchain.Workflows = workflow.New(workflow.Config{
		Engine:    toolchain.Engine,
		Lifecycle: toolchain.Lifecycle,
		Logger:    logger,
	})
	return toolchain, nil
}

// Prepare loads configuration, lets adjust apply command-specific
// overrides, and builds the toolchain. adjust may be nil.
func (o *SpecOptions) Prepare(logger *slog.Logger, adjust func(*config.Config) error) (*Toolchain, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return nil, err
		}
	}
	toolchain, err := NewToolchain(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("preparing toolchain: %w", err)
	}
	return toolchain, nil
}
