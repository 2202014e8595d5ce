// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wrangler.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("WRANGLER_CONFIG", "")
	t.Setenv("WRANGLER_ROOT", "/srv/wrangler")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Paths.Root != "/srv/wrangler" {
		t.Errorf("expected root=/srv/wrangler, got %s", cfg.Paths.Root)
	}
	if cfg.Paths.Repos != "/srv/wrangler/repos" {
		t.Errorf("expected repos=/srv/wrangler/repos, got %s", cfg.Paths.Repos)
	}
	if cfg.Paths.MambaRoot != "/srv/wrangler/mamba" {
		t.Errorf("expected mamba_root=/srv/wrangler/mamba, got %s", cfg.Paths.MambaRoot)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefault_HomeRoot(t *testing.T) {
	t.Setenv("WRANGLER_ROOT", "")
	t.Setenv("HOME", "/home/scientist")

	cfg := Default()
	if cfg.Paths.Root != "/home/scientist/.wrangler" {
		t.Errorf("expected root under HOME, got %s", cfg.Paths.Root)
	}
	if cfg.Archive.Format != "tar.zst" {
		t.Errorf("expected archive format tar.zst, got %s", cfg.Archive.Format)
	}
	if cfg.Clone.OnLocalChanges != "fail" {
		t.Errorf("expected on_local_changes=fail, got %s", cfg.Clone.OnLocalChanges)
	}
}

func TestLoad_WithWranglerConfig(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /test/root
  kernels: ${HOME}/kernels
testing:
  jobs: 8
  timeout: 45m
clone:
  on_local_changes: stash
spi:
  build_command: [make, build]
`)
	t.Setenv("WRANGLER_CONFIG", path)
	t.Setenv("HOME", "/home/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
	// Derived paths follow the overridden root.
	if cfg.Paths.Archives != "/test/root/archives" {
		t.Errorf("expected archives=/test/root/archives, got %s", cfg.Paths.Archives)
	}
	if cfg.Paths.Kernels != "/home/test/kernels" {
		t.Errorf("expected kernels=/home/test/kernels, got %s", cfg.Paths.Kernels)
	}
	if cfg.Testing.Jobs != 8 || cfg.TestTimeout() != 45*time.Minute {
		t.Errorf("testing = %+v", cfg.Testing)
	}
	// Unset fields keep their defaults.
	if cfg.ImportTimeout() != 10*time.Minute {
		t.Errorf("expected import timeout 10m, got %v", cfg.ImportTimeout())
	}
	if cfg.Clone.OnLocalChanges != "stash" {
		t.Errorf("expected on_local_changes=stash, got %s", cfg.Clone.OnLocalChanges)
	}
	if len(cfg.SPI.BuildCommand) != 2 || cfg.SPI.BuildCommand[0] != "make" {
		t.Errorf("expected build command [make build], got %v", cfg.SPI.BuildCommand)
	}
}

func TestLoadFile_EmptyFile(t *testing.T) {
	t.Setenv("WRANGLER_ROOT", "/r")
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile(empty) failed: %v", err)
	}
	if cfg.Paths.Locks != "/r/locks" {
		t.Errorf("expected locks=/r/locks, got %s", cfg.Paths.Locks)
	}
}

func TestLoadFile_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(writeConfig(t, "paths:\n  rooot: /typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "rooot") {
		t.Errorf("error %q does not name the unknown field", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("WRANGLER_TEST_SET", "set")
	t.Setenv("WRANGLER_TEST_UNSET", "")

	vars := map[string]string{"WRANGLER_ROOT": "/root"}
	tests := []struct {
		input string
		want  string
	}{
		{"${WRANGLER_ROOT}/repos", "/root/repos"},
		{"${WRANGLER_TEST_SET}", "set"},
		{"${WRANGLER_TEST_UNSET:-fallback}", "fallback"},
		{"${WRANGLER_TEST_UNSET}", ""},
		{"plain", "plain"},
		{"$NOT_BRACED", "$NOT_BRACED"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.expandVariables()
	cfg.Paths.Repos = "relative/repos"
	cfg.Testing.Jobs = 0
	cfg.Testing.Timeout = "soon"
	cfg.Clone.OnLocalChanges = "merge"
	cfg.Archive.Format = "zip"
	cfg.SPI.ArtifactRoot = "/abs"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, fragment := range []string{
		"paths.repos must be absolute",
		"testing.jobs",
		"testing.timeout",
		"clone.on_local_changes",
		"archive.format",
		"spi.artifact_root",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error does not mention %q:\n%v", fragment, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Paths.Root = t.TempDir()
	cfg.expandVariables()
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.Repos, cfg.Paths.Archives, cfg.Paths.Wheelhouse, cfg.Paths.MambaRoot, cfg.Paths.Locks} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestBinaries(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Tools.Micromamba = "/opt/bin/micromamba"
	binaries := cfg.Binaries()
	if len(binaries) != 1 || binaries["micromamba"] != "/opt/bin/micromamba" {
		t.Errorf("Binaries() = %v", binaries)
	}
}
