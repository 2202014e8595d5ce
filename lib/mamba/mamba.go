// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mamba

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/resolver"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

// Config configures a Manager.
type Config struct {
	Runner toolexec.Runner

	// Root is the micromamba root prefix.
	Root string

	// Micromamba is the micromamba binary name or path.
	Micromamba string

	// Python builds wheels before any environment exists.
	Python string

	Logger *slog.Logger
}

// Manager creates, populates, and removes micromamba environments.
type Manager struct {
	runner     toolexec.Runner
	root       string
	micromamba string
	python     string
	logger     *slog.Logger
}

// New returns a Manager.
func New(config Config) *Manager {
	manager := &Manager{
		runner:     config.Runner,
		root:       config.Root,
		micromamba: config.Micromamba,
		python:     config.Python,
		logger:     config.Logger,
	}
	if manager.micromamba == "" {
		manager.micromamba = "micromamba"
	}
	if manager.python == "" {
		manager.python = "python3"
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return manager
}

// Prefix returns the installation prefix of an environment.
func (m *Manager) Prefix(environmentID string) string {
	return filepath.Join(m.root, "envs", environmentID)
}

// Python returns the interpreter inside an environment.
func (m *Manager) Python(environmentID string) string {
	return filepath.Join(m.Prefix(environmentID), "bin", "python")
}

// Install realizes spec into its prefix, creating the prefix when it
// does not exist. wheels maps vcs package names to locally built wheel
// files; vcs packages without a wheel are installed from git directly.
func (m *Manager) Install(ctx context.Context, spec wrangler.EnvironmentSpec, wheels map[string]string) error {
	logger := m.logger.With("environment", spec.ID)
	prefix := m.Prefix(spec.ID)

	if _, err := os.Stat(m.Python(spec.ID)); err != nil {
		logger.Info("creating environment", "prefix", prefix, "python", spec.Python)
		if _, err := m.runner.Run(ctx, m.createInvocation(spec)); err != nil {
			return fmt.Errorf("creating environment %s: %w", spec.ID, err)
		}
	}

	requirements := Requirements(spec, wheels)
	if len(requirements) == 0 {
		return nil
	}
	logger.Info("installing packages", "count", len(requirements))
	_, err := m.runner.Run(ctx, toolexec.Invocation{
		Name:  m.Python(spec.ID),
		Args:  []string{"-m", "pip", "install", "--no-input", "--disable-pip-version-check", "--requirement", "/dev/stdin"},
		Stdin: strings.NewReader(strings.Join(requirements, "\n") + "\n"),
		Env:   []string{"PIP_NO_INPUT=1"},
	})
	if err != nil {
		return fmt.Errorf("installing packages into %s: %w", spec.ID, err)
	}
	return nil
}

func (m *Manager) createInvocation(spec wrangler.EnvironmentSpec) toolexec.Invocation {
	args := []string{"create", "--yes", "--root-prefix", m.root, "--prefix", m.Prefix(spec.ID)}
	channels := spec.Channels
	if len(channels) == 0 {
		channels = []string{"conda-forge"}
	}
	for _, channel := range channels {
		args = append(args, "--channel", channel)
	}
	python := "python"
	if spec.Python != "" {
		python = "python=" + spec.Python
	}
	args = append(args, python, "pip")
	return toolexec.Invocation{Name: m.micromamba, Args: args}
}

// Requirements renders the pip requirement lines for spec's packages
// in spec order.
func Requirements(spec wrangler.EnvironmentSpec, wheels map[string]string) []string {
	var lines []string
	for _, entry := range spec.Packages {
		switch entry.Source {
		case wrangler.SourceVCS:
			if wheel, ok := wheels[entry.Name]; ok {
				lines = append(lines, wheel)
				continue
			}
			reference := "git+" + entry.URL
			if entry.Constraint != "" {
				reference += "@" + entry.Constraint
			}
			lines = append(lines, entry.Name+" @ "+reference)
		default:
			lines = append(lines, resolver.Requirement(entry.Name, entry.Constraint))
		}
	}
	return lines
}

// Uninstall removes an environment's prefix. Removing an absent
// environment succeeds.
func (m *Manager) Uninstall(ctx context.Context, environmentID string) error {
	prefix := m.Prefix(environmentID)
	if _, err := os.Stat(prefix); os.IsNotExist(err) {
		return nil
	}
	_, err := m.runner.Run(ctx, toolexec.Invocation{
		Name: m.micromamba,
		Args: []string{"env", "remove", "--yes", "--root-prefix", m.root, "--prefix", prefix},
	})
	if err != nil {
		return fmt.Errorf("removing environment %s: %w", environmentID, err)
	}
	// micromamba leaves pip-installed files behind.
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("removing %s: %w", prefix, err)
	}
	return nil
}

// BuildWheel builds a wheel from a source checkout into outputDir and
// returns its path.
func (m *Manager) BuildWheel(ctx context.Context, name, sourceDir, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating wheelhouse %s: %w", outputDir, err)
	}
	_, err := m.runner.Run(ctx, toolexec.Invocation{
		Name: m.python,
		Args: []string{"-m", "pip", "wheel", "--no-deps", "--no-input", "--disable-pip-version-check", "--wheel-dir", outputDir, sourceDir},
	})
	if err != nil {
		return "", fmt.Errorf("building wheel for %s: %w", name, err)
	}
	wheel, ok, err := FindWheel(outputDir, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("building wheel for %s: pip reported success but no wheel appeared in %s", name, outputDir)
	}
	return wheel, nil
}

// FindWheel returns the newest wheel for a distribution in dir.
func FindWheel(dir, name string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	normalized := resolver.NormalizeName(name)
	var newest string
	var newestInfo os.FileInfo
	for _, entry := range entries {
		fileName := entry.Name()
		if !strings.HasSuffix(fileName, ".whl") {
			continue
		}
		distribution, _, _ := strings.Cut(fileName, "-")
		if resolver.NormalizeName(distribution) != normalized {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", false, err
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = filepath.Join(dir, fileName), info
		}
	}
	return newest, newest != "", nil
}

// InstalledDistributions maps normalized distribution names to
// versions by reading the prefix's .dist-info directories.
func (m *Manager) InstalledDistributions(environmentID string) (map[string]string, error) {
	pattern := filepath.Join(m.Prefix(environmentID), "lib", "python*", "site-packages", "*.dist-info")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	installed := make(map[string]string, len(matches))
	for _, match := range matches {
		base := strings.TrimSuffix(filepath.Base(match), ".dist-info")
		separator := strings.LastIndex(base, "-")
		if separator <= 0 {
			continue
		}
		installed[resolver.NormalizeName(base[:separator])] = base[separator+1:]
	}
	return installed, nil
}

// ProbeResult describes an environment's installed state.
type ProbeResult struct {
	Prefix string `json:"prefix"`

	// Exists is true when the prefix has a python interpreter.
	Exists bool `json:"exists"`

	// Missing lists spec packages absent from the prefix or installed
	// at a version other than their pin.
	Missing []string `json:"missing,omitempty"`
}

// Installed reports whether the prefix satisfies the spec.
func (p ProbeResult) Installed() bool {
	return p.Exists && len(p.Missing) == 0
}

// Probe inspects the prefix against spec.
func (m *Manager) Probe(spec wrangler.EnvironmentSpec) (ProbeResult, error) {
	result := ProbeResult{Prefix: m.Prefix(spec.ID)}
	if _, err := os.Stat(m.Python(spec.ID)); err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}
	result.Exists = true

	installed, err := m.InstalledDistributions(spec.ID)
	if err != nil {
		return result, err
	}
	for _, entry := range spec.Packages {
		version, ok := installed[resolver.NormalizeName(entry.Name)]
		switch {
		case !ok:
			result.Missing = append(result.Missing, entry.Name)
		case entry.Source != wrangler.SourceVCS && strings.HasPrefix(entry.Constraint, "==") &&
			version != strings.TrimPrefix(entry.Constraint, "=="):
			result.Missing = append(result.Missing, fmt.Sprintf("%s (have %s, want %s)", entry.Name, version, entry.Constraint))
		}
	}
	sort.Strings(result.Missing)
	return result, nil
}
