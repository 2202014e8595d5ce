// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for wrangler.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Tools overrides where external binaries are found.
	Tools ToolsConfig `yaml:"tools"`

	// Testing configures test-imports and test-notebooks.
	Testing TestingConfig `yaml:"testing"`

	// Clone configures the repository clone manager.
	Clone CloneConfig `yaml:"clone"`

	// Archive configures env-pack.
	Archive ArchiveConfig `yaml:"archive"`

	// SPI configures inject-spi.
	SPI SPIConfig `yaml:"spi"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for wrangler data.
	Root string `yaml:"root"`

	// Bin is searched for tool binaries after PATH.
	Bin string `yaml:"bin"`

	// Repos is where source and notebook repositories are cloned
	// (--repos-dir overrides it).
	Repos string `yaml:"repos"`

	// Archives is where env-pack writes archives.
	Archives string `yaml:"archives"`

	// Wheelhouse is where packages-compile writes wheels, one
	// subdirectory per environment.
	Wheelhouse string `yaml:"wheelhouse"`

	// MambaRoot is the micromamba root prefix. Environments live in
	// <mamba_root>/envs/<id>.
	MambaRoot string `yaml:"mamba_root"`

	// Kernels is the Jupyter kernels directory. Empty means the
	// per-user Jupyter data directory.
	Kernels string `yaml:"kernels"`

	// Locks holds the per-environment and per-target lock files.
	Locks string `yaml:"locks"`

	// Data is where data entries without an install_path are fetched.
	Data string `yaml:"data"`
}

// ToolsConfig pins external binaries to explicit paths. Empty fields
// are looked up on PATH and then in paths.bin.
type ToolsConfig struct {
	Micromamba string `yaml:"micromamba"`
	Python     string `yaml:"python"`
	Jupyter    string `yaml:"jupyter"`
	Git        string `yaml:"git"`
	UV         string `yaml:"uv"`
}

// TestingConfig configures verification runs.
type TestingConfig struct {
	// Jobs bounds concurrently executing notebooks.
	Jobs int `yaml:"jobs"`

	// Timeout bounds one notebook execution (Go duration syntax).
	Timeout string `yaml:"timeout"`

	// ImportTimeout bounds the import check of one environment.
	ImportTimeout string `yaml:"import_timeout"`

	// Exclude lists notebook path patterns never executed.
	Exclude []string `yaml:"exclude"`
}

// CloneConfig configures repository cloning.
type CloneConfig struct {
	// Attempts is how many times a retryable clone failure is tried.
	Attempts int `yaml:"attempts"`

	// Backoff is the delay before the first retry; it doubles after
	// each attempt.
	Backoff string `yaml:"backoff"`

	// OnLocalChanges is fail, overwrite, or stash.
	OnLocalChanges string `yaml:"on_local_changes"`
}

// ArchiveConfig configures packing.
type ArchiveConfig struct {
	// Format is tar.zst, tar.lz4, or tar.
	Format string `yaml:"format"`
}

// SPIConfig configures injection into deployment repositories.
type SPIConfig struct {
	// ArtifactRoot is the directory inside the target repository that
	// receives environment artifacts when the spec's deployment.path
	// is unset.
	ArtifactRoot string `yaml:"artifact_root"`

	// BaseBranch is the branch injection branches from when the spec's
	// deployment.base_branch is unset.
	BaseBranch string `yaml:"base_branch"`

	// Remote is the remote --spi-push pushes to.
	Remote string `yaml:"remote"`

	// BuildCommand runs in the target clone for --spi-build.
	BuildCommand []string `yaml:"build_command"`

	// BuildTimeout bounds the build command.
	BuildTimeout string `yaml:"build_timeout"`
}

// Default returns the configuration used when no file is given and
// the base that a file is merged over.
func Default() *Config {
	root := os.Getenv("WRANGLER_ROOT")
	if root == "" {
		homeDir, _ := os.UserHomeDir()
		root = filepath.Join(homeDir, ".wrangler")
	}

	return &Config{
		Paths: PathsConfig{
			Root:       root,
			Bin:        "${WRANGLER_ROOT}/bin",
			Repos:      "${WRANGLER_ROOT}/repos",
			Archives:   "${WRANGLER_ROOT}/archives",
			Wheelhouse: "${WRANGLER_ROOT}/wheelhouse",
			MambaRoot:  "${WRANGLER_ROOT}/mamba",
			Locks:      "${WRANGLER_ROOT}/locks",
			Data:       "${WRANGLER_ROOT}/data",
		},
		Testing: TestingConfig{
			Jobs:          4,
			Timeout:       "30m",
			ImportTimeout: "10m",
		},
		Clone: CloneConfig{
			Attempts:       3,
			Backoff:        "5s",
			OnLocalChanges: "fail",
		},
		Archive: ArchiveConfig{
			Format: "tar.zst",
		},
		SPI: SPIConfig{
			ArtifactRoot: "deployments/environments",
			BaseBranch:   "main",
			Remote:       "origin",
			BuildTimeout: "1h",
		},
	}
}

// Load loads the file named by WRANGLER_CONFIG, or the defaults when
// it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("WRANGLER_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"WRANGLER_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["WRANGLER_ROOT"] = c.Paths.Root

	for _, field := range []*string{
		&c.Paths.Bin,
		&c.Paths.Repos,
		&c.Paths.Archives,
		&c.Paths.Wheelhouse,
		&c.Paths.MambaRoot,
		&c.Paths.Kernels,
		&c.Paths.Locks,
		&c.Paths.Data,
		&c.Tools.Micromamba,
		&c.Tools.Python,
		&c.Tools.Jupyter,
		&c.Tools.Git,
		&c.Tools.UV,
		&c.SPI.ArtifactRoot,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	for name, value := range map[string]string{
		"paths.repos":      c.Paths.Repos,
		"paths.archives":   c.Paths.Archives,
		"paths.mamba_root": c.Paths.MambaRoot,
		"paths.locks":      c.Paths.Locks,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		} else if !filepath.IsAbs(value) {
			errs = append(errs, fmt.Errorf("%s must be absolute, got %q", name, value))
		}
	}

	if c.Testing.Jobs < 1 {
		errs = append(errs, fmt.Errorf("testing.jobs must be at least 1, got %d", c.Testing.Jobs))
	}
	for name, value := range map[string]string{
		"testing.timeout":        c.Testing.Timeout,
		"testing.import_timeout": c.Testing.ImportTimeout,
		"clone.backoff":          c.Clone.Backoff,
		"spi.build_timeout":      c.SPI.BuildTimeout,
	} {
		if _, err := parseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Clone.Attempts < 1 {
		errs = append(errs, fmt.Errorf("clone.attempts must be at least 1, got %d", c.Clone.Attempts))
	}
	localChanges := []string{"fail", "overwrite", "stash"}
	if !contains(localChanges, c.Clone.OnLocalChanges) {
		errs = append(errs, fmt.Errorf("clone.on_local_changes must be one of: %v", localChanges))
	}

	formats := []string{"tar.zst", "tar.lz4", "tar"}
	if !contains(formats, c.Archive.Format) {
		errs = append(errs, fmt.Errorf("archive.format must be one of: %v", formats))
	}

	if c.SPI.BaseBranch == "" {
		errs = append(errs, fmt.Errorf("spi.base_branch is required"))
	}
	if filepath.IsAbs(c.SPI.ArtifactRoot) {
		errs = append(errs, fmt.Errorf("spi.artifact_root must be relative to the target repository, got %q", c.SPI.ArtifactRoot))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TestTimeout returns testing.timeout. Zero means unbounded.
func (c *Config) TestTimeout() time.Duration {
	d, _ := parseDuration(c.Testing.Timeout)
	return d
}

// ImportTimeout returns testing.import_timeout.
func (c *Config) ImportTimeout() time.Duration {
	d, _ := parseDuration(c.Testing.ImportTimeout)
	return d
}

// CloneBackoff returns clone.backoff.
func (c *Config) CloneBackoff() time.Duration {
	d, _ := parseDuration(c.Clone.Backoff)
	return d
}

// BuildTimeout returns spi.build_timeout.
func (c *Config) BuildTimeout() time.Duration {
	d, _ := parseDuration(c.SPI.BuildTimeout)
	return d
}

// parseDuration accepts Go duration syntax; empty means zero.
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", value)
	}
	return d, nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Repos,
		c.Paths.Archives,
		c.Paths.Wheelhouse,
		c.Paths.MambaRoot,
		c.Paths.Locks,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// Binaries maps tool names to their configured paths, for
// toolexec.Exec. Unset tools are omitted.
func (c *Config) Binaries() map[string]string {
	binaries := map[string]string{}
	for name, path := range map[string]string{
		"micromamba": c.Tools.Micromamba,
		"python3":    c.Tools.Python,
		"jupyter":    c.Tools.Jupyter,
		"git":        c.Tools.Git,
		"uv":         c.Tools.UV,
	} {
		if path != "" {
			binaries[name] = path
		}
	}
	return binaries
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
