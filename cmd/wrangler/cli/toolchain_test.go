// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/wrangler/lib/config"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/testutil"
)

func TestSpecPathsFromArguments(t *testing.T) {
	t.Parallel()

	options := SpecOptions{Parallel: 1}
	paths, err := options.SpecPaths([]string{"a.yaml", "b.yaml", "a.yaml", ""})
	if err != nil {
		t.Fatalf("SpecPaths: %v", err)
	}
	if diff := cmp.Diff([]string{"a.yaml", "b.yaml"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestSpecPathsFromEnvironment(t *testing.T) {
	t.Setenv(SpecEnvVar, "roman.yaml"+string(os.PathListSeparator)+"tike.yaml")

	options := SpecOptions{Parallel: 1}
	paths, err := options.SpecPaths(nil)
	if err != nil {
		t.Fatalf("SpecPaths: %v", err)
	}
	if diff := cmp.Diff([]string{"roman.yaml", "tike.yaml"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	paths, err = options.SpecPaths([]string{"explicit.yaml"})
	if err != nil {
		t.Fatalf("SpecPaths: %v", err)
	}
	if diff := cmp.Diff([]string{"explicit.yaml"}, paths); diff != "" {
		t.Errorf("arguments should override %s (-want +got):\n%s", SpecEnvVar, diff)
	}
}

func TestSpecPathsRequiresOne(t *testing.T) {
	t.Setenv(SpecEnvVar, "")

	options := SpecOptions{Parallel: 1}
	_, err := options.SpecPaths(nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
		t.Fatalf("SpecPaths(nil) = %v, want a validation error", err)
	}
}

func TestSpecPathsRejectsZeroParallel(t *testing.T) {
	t.Parallel()

	options := SpecOptions{Parallel: 0}
	if _, err := options.SpecPaths([]string{"a.yaml"}); err == nil {
		t.Error("SpecPaths with --parallel 0 = nil, want error")
	}
}

func TestCloneOptionsApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options CloneOptions
		want    string
		wantErr bool
	}{
		{"default keeps configuration", CloneOptions{}, "fail", false},
		{"overwrite", CloneOptions{OverwriteLocalChanges: true}, string(repos.OverwriteLocalChanges), false},
		{"stash", CloneOptions{StashLocalChanges: true}, string(repos.StashLocalChanges), false},
		{"both", CloneOptions{OverwriteLocalChanges: true, StashLocalChanges: true}, "", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			err := test.options.Apply(cfg)
			if test.wantErr {
				if err == nil {
					t.Fatal("Apply = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if cfg.Clone.OnLocalChanges != test.want {
				t.Errorf("on_local_changes = %q, want %q", cfg.Clone.OnLocalChanges, test.want)
			}
		})
	}
}

func TestPrepareBuildsToolchain(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	configPath := testutil.WriteFile(t, root, "wrangler.yaml",
		"paths:\n  root: "+root+"\n  kernels: "+filepath.Join(root, "kernels")+"\n")
	reposDir := filepath.Join(root, "elsewhere")

	options := SpecOptions{ConfigFile: configPath, ReposDir: reposDir, Parallel: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	toolchain, err := options.Prepare(logger, func(cfg *config.Config) error {
		cfg.Testing.Jobs = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if toolchain.Config.Paths.Repos != reposDir {
		t.Errorf("paths.repos = %q, want %q", toolchain.Config.Paths.Repos, reposDir)
	}
	if toolchain.Config.Testing.Jobs != 2 {
		t.Errorf("testing.jobs = %d, want the adjusted 2", toolchain.Config.Testing.Jobs)
	}
	for _, dir := range []string{reposDir, filepath.Join(root, "archives"), filepath.Join(root, "locks")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s was not created: %v", dir, err)
		}
	}
	if toolchain.Lifecycle == nil || toolchain.Workflows == nil || toolchain.Injector == nil {
		t.Error("toolchain collaborators not wired")
	}
}

func TestPrepareRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	configPath := testutil.WriteFile(t, root, "wrangler.yaml",
		"paths:\n  root: "+root+"\narchive:\n  format: zip\n")

	options := SpecOptions{ConfigFile: configPath, Parallel: 1}
	_, err := options.Prepare(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
		t.Fatalf("Prepare = %v, want a validation error", err)
	}
}
