// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. Wrangler uses git
// in two places: the clone manager materializes source and notebook
// repositories at curated commits, and the injection workflow commits
// environment artifacts onto a feature branch of a deployment
// repository. All commands target a specific working tree via the -C
// flag, which every Repository method injects.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Repository represents a git working tree at a specific directory.
// There is no default directory; callers always say which repository
// they mean.
type Repository struct {
	dir string
	env []string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// WithIdentity returns a copy of r whose commits use the given author
// and committer identity instead of the user's git configuration.
func (r *Repository) WithIdentity(name, email string) *Repository {
	if name == "" && email == "" {
		return r
	}
	clone := &Repository{dir: r.dir, env: append([]string(nil), r.env...)}
	clone.env = append(clone.env,
		"GIT_AUTHOR_NAME="+name, "GIT_AUTHOR_EMAIL="+email,
		"GIT_COMMITTER_NAME="+name, "GIT_COMMITTER_EMAIL="+email,
	)
	return clone
}

// Clone clones url into dir without checking out a working tree and
// returns the new Repository. The caller checks out the revision it
// wants afterwards.
func Clone(ctx context.Context, url, dir string) (*Repository, error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", "clone", "--quiet", "--no-checkout", url, dir)
	command.Stderr = &stderr
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("git clone %s %s: %w (stderr: %s)",
			url, dir, err, strings.TrimSpace(stderr.String()))
	}
	return NewRepository(dir), nil
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	stdout, exitCode, stderr, err := r.run(ctx, args)
	if err != nil {
		return "", r.formatError(args, exitCode, stderr, err)
	}
	return stdout, nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The -C flag targeting this repository is prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	command.Env = append(command.Env, r.env...)
	return command
}

// run executes a command and reports the exit code separately so that
// query commands can treat specific non-zero codes as answers.
func (r *Repository) run(ctx context.Context, args []string) (stdout string, exitCode int, stderr string, err error) {
	var stdoutBuffer, stderrBuffer bytes.Buffer
	command := r.Command(ctx, args...)
	command.Stdout = &stdoutBuffer
	command.Stderr = &stderrBuffer
	err = command.Run()
	exitCode = 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	return stdoutBuffer.String(), exitCode, strings.TrimSpace(stderrBuffer.String()), err
}

func (r *Repository) formatError(args []string, exitCode int, stderr string, err error) error {
	return &CommandError{
		Args:     args,
		Dir:      r.dir,
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// CommandError is a failed git invocation.
type CommandError struct {
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s in %s: %v (stderr: %s)",
		strings.Join(e.Args, " "), e.Dir, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Fetch fetches refspecs from remote. With no refspecs git fetches
// the remote's configured refs, including tags.
func (r *Repository) Fetch(ctx context.Context, remote string, refspecs ...string) error {
	args := append([]string{"fetch", "--quiet", "--tags", remote}, refspecs...)
	_, err := r.Run(ctx, args...)
	return err
}

// Checkout switches the working tree to ref.
func (r *Repository) Checkout(ctx context.Context, ref string) error {
	_, err := r.Run(ctx, "checkout", "--quiet", ref)
	return err
}

// CheckoutDetached checks out rev with a detached HEAD.
func (r *Repository) CheckoutDetached(ctx context.Context, rev string) error {
	_, err := r.Run(ctx, "checkout", "--quiet", "--detach", rev)
	return err
}

// ResolveCommit returns the full sha rev names, or "" with a nil
// error when rev does not name a commit in this repository.
func (r *Repository) ResolveCommit(ctx context.Context, rev string) (string, error) {
	stdout, exitCode, stderr, err := r.run(ctx, []string{"rev-parse", "--verify", "--quiet", rev + "^{commit}"})
	if err != nil {
		if exitCode == 1 {
			return "", nil
		}
		return "", r.formatError([]string{"rev-parse", rev}, exitCode, stderr, err)
	}
	return strings.TrimSpace(stdout), nil
}

// Head returns the sha of HEAD, or "" in a repository with no
// checked-out commit.
func (r *Repository) Head(ctx context.Context) (string, error) {
	return r.ResolveCommit(ctx, "HEAD")
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is
// detached.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	stdout, exitCode, stderr, err := r.run(ctx, []string{"symbolic-ref", "--quiet", "--short", "HEAD"})
	if err != nil {
		if exitCode == 1 {
			return "", nil
		}
		return "", r.formatError([]string{"symbolic-ref", "HEAD"}, exitCode, stderr, err)
	}
	return strings.TrimSpace(stdout), nil
}

// Status returns the porcelain status lines of the working tree,
// including untracked files. An empty result means the tree is clean.
func (r *Repository) Status(ctx context.Context) ([]string, error) {
	stdout, err := r.Run(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// IsClean reports whether the working tree has no changes.
func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	lines, err := r.Status(ctx)
	return len(lines) == 0, err
}

// BranchExists reports whether a local branch exists.
func (r *Repository) BranchExists(ctx context.Context, name string) (bool, error) {
	return r.RefExists(ctx, "refs/heads/"+name)
}

// RefExists reports whether the fully qualified ref exists, for
// example "refs/remotes/origin/main".
func (r *Repository) RefExists(ctx context.Context, ref string) (bool, error) {
	_, exitCode, stderr, err := r.run(ctx, []string{"show-ref", "--verify", "--quiet", ref})
	if err != nil {
		if exitCode == 1 {
			return false, nil
		}
		return false, r.formatError([]string{"show-ref", ref}, exitCode, stderr, err)
	}
	return true, nil
}

// CreateBranch creates branch name at from and checks it out.
func (r *Repository) CreateBranch(ctx context.Context, name, from string) error {
	_, err := r.Run(ctx, "checkout", "--quiet", "-b", name, from)
	return err
}

// DeleteBranch force-deletes a local branch.
func (r *Repository) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.Run(ctx, "branch", "--quiet", "-D", name)
	return err
}

// AddAll stages every change (additions, modifications, deletions)
// under the given paths.
func (r *Repository) AddAll(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--all", "--"}, paths...)
	_, err := r.Run(ctx, args...)
	return err
}

// StagedDiffEmpty reports whether the index matches HEAD.
func (r *Repository) StagedDiffEmpty(ctx context.Context) (bool, error) {
	_, exitCode, stderr, err := r.run(ctx, []string{"diff", "--cached", "--quiet"})
	if err != nil {
		if exitCode == 1 {
			return false, nil
		}
		return false, r.formatError([]string{"diff", "--cached", "--quiet"}, exitCode, stderr, err)
	}
	return true, nil
}

// Commit records the index with message and returns the new HEAD sha.
func (r *Repository) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.Run(ctx, "commit", "--quiet", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return r.Head(ctx)
}

// Push pushes branch to remote. force uses --force-with-lease so a
// branch recreated from base replaces its earlier remote copy only
// when nobody else has pushed to it.
func (r *Repository) Push(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push", "--quiet"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, "refs/heads/"+branch+":refs/heads/"+branch)
	_, err := r.Run(ctx, args...)
	return err
}

// Stash saves local changes, including untracked files, under message.
func (r *Repository) Stash(ctx context.Context, message string) error {
	_, err := r.Run(ctx, "stash", "push", "--quiet", "--include-untracked", "-m", message)
	return err
}

// Discard throws away every local change: tracked modifications are
// reset and untracked files removed.
func (r *Repository) Discard(ctx context.Context) error {
	if _, err := r.Run(ctx, "reset", "--quiet", "--hard"); err != nil {
		return err
	}
	_, err := r.Run(ctx, "clean", "--quiet", "-fd")
	return err
}

// RemoteURL returns the fetch URL of remote.
func (r *Repository) RemoteURL(ctx context.Context, remote string) (string, error) {
	stdout, err := r.Run(ctx, "remote", "get-url", remote)
	return strings.TrimSpace(stdout), err
}

// CommitMessage returns the full message of rev without the trailing
// newline.
func (r *Repository) CommitMessage(ctx context.Context, rev string) (string, error) {
	stdout, err := r.Run(ctx, "log", "-1", "--format=%B", rev)
	return strings.TrimRight(stdout, "\n"), err
}

// CountCommits returns how many commits are reachable from to but not
// from from.
func (r *Repository) CountCommits(ctx context.Context, from, to string) (int, error) {
	stdout, err := r.Run(ctx, "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", stdout, err)
	}
	return count, nil
}

// ChangedFiles lists the paths that differ between two revisions.
func (r *Repository) ChangedFiles(ctx context.Context, from, to string) ([]string, error) {
	stdout, err := r.Run(ctx, "diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
