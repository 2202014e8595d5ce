// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Fixed identity for fixture commits.
var gitEnvironment = []string{
	"GIT_AUTHOR_NAME=Test",
	"GIT_AUTHOR_EMAIL=test@test.local",
	"GIT_COMMITTER_NAME=Test",
	"GIT_COMMITTER_EMAIL=test@test.local",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_TERMINAL_PROMPT=0",
}

// GitIdentity is the author name and email fixture commits use.
const (
	GitIdentityName  = "Test"
	GitIdentityEmail = "test@test.local"
)

// RequireGit skips the test when git is not installed.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
}

// Git runs git with args in dir and returns trimmed stdout.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	command.Env = append(os.Environ(), gitEnvironment...)
	output, err := command.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		t.Fatalf("git %s in %s: %v\n%s", strings.Join(args, " "), dir, err, stderr)
	}
	return strings.TrimSpace(string(output))
}

// InitRepo creates a working tree on branch "main" with one commit
// containing README, and returns its path.
func InitRepo(t testing.TB) string {
	t.Helper()
	RequireGit(t)

	dir := filepath.Join(t.TempDir(), "repo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}
	Git(t, dir, "init", "--quiet", "--initial-branch=main")
	CommitFiles(t, dir, map[string]string{"README": "test\n"}, "initial")
	return dir
}

// CommitFiles writes files (relative path to content) into the working
// tree at dir, commits them with message, and returns the commit sha.
func CommitFiles(t testing.TB, dir string, files map[string]string, message string) string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for relative := range files {
		paths = append(paths, relative)
	}
	sort.Strings(paths)
	for _, relative := range paths {
		WriteFile(t, dir, relative, files[relative])
	}
	Git(t, dir, "add", "--all")
	Git(t, dir, "commit", "--quiet", "--no-verify", "-m", message)
	return Git(t, dir, "rev-parse", "HEAD")
}

// InitRemote creates a bare repository seeded with every branch of
// the working tree at source, adds it to source as "origin", and
// returns the bare repository path. The path works as a clone URL.
func InitRemote(t testing.TB, source string) string {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "remote.git")
	Git(t, filepath.Dir(bare), "init", "--quiet", "--bare", "--initial-branch=main", bare)
	Git(t, source, "remote", "add", "origin", bare)
	Git(t, source, "push", "--quiet", "origin", "--all")
	Git(t, source, "push", "--quiet", "origin", "--tags")
	return bare
}
