// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/git"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

var (
	// ErrDirtyTarget means the target clone has uncommitted changes.
	ErrDirtyTarget = errors.New("target repository has uncommitted changes")

	// ErrNothingToCommit means the artifacts match what the base
	// branch already holds.
	ErrNothingToCommit = errors.New("injected artifacts produced no changes")
)

// BuildError reports a failed downstream build. The injection commit
// it verified is kept.
type BuildError struct {
	Command []string
	Commit  string
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %q on commit %s failed: %v", strings.Join(e.Command, " "), shortCommit(e.Commit), e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Config configures an Injector.
type Config struct {
	// Locker serializes injections per target clone. Nil disables
	// locking.
	Locker *envlock.Locker

	// Tools runs the build command.
	Tools toolexec.Runner

	// AuthorName and AuthorEmail override the git identity of the
	// injection commit. Empty uses the target's git configuration.
	AuthorName  string
	AuthorEmail string

	Logger *slog.Logger
}

// Injector performs injections.
type Injector struct {
	locker      *envlock.Locker
	tools       toolexec.Runner
	authorName  string
	authorEmail string
	logger      *slog.Logger
}

// New returns an Injector.
func New(config Config) *Injector {
	injector := &Injector{
		locker:      config.Locker,
		tools:       config.Tools,
		authorName:  config.AuthorName,
		authorEmail: config.AuthorEmail,
		logger:      config.Logger,
	}
	if injector.tools == nil {
		injector.tools = &toolexec.Exec{}
	}
	if injector.logger == nil {
		injector.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return injector
}

// Request describes one injection.
type Request struct {
	// Environment is the environment identifier; artifacts land in
	// <ArtifactRoot>/<Environment>.
	Environment string
	Artifacts   []Artifact

	// Target is the local clone of the deployment repository.
	Target string

	// ArtifactRoot is relative to Target.
	ArtifactRoot string

	BaseBranch    string
	Branch        string
	CommitMessage string

	// Prune removes files from the environment's artifact directory
	// that are not in Artifacts.
	Prune bool

	// BuildCommand runs in Target after the commit when non-empty.
	BuildCommand []string
	BuildTimeout time.Duration

	// Push pushes Branch to Remote after the commit (and build).
	Push   bool
	Remote string
}

func (r Request) validate() error {
	var problems []error
	if r.Environment == "" {
		problems = append(problems, errors.New("environment is required"))
	}
	if len(r.Artifacts) == 0 {
		problems = append(problems, errors.New("no artifacts to inject"))
	}
	if r.Target == "" {
		problems = append(problems, errors.New("target repository is required"))
	}
	if r.ArtifactRoot == "" || filepath.IsAbs(r.ArtifactRoot) || !filepath.IsLocal(r.ArtifactRoot) {
		problems = append(problems, fmt.Errorf("artifact root %q must be a relative path inside the target", r.ArtifactRoot))
	}
	if r.BaseBranch == "" || r.Branch == "" {
		problems = append(problems, errors.New("base branch and feature branch are required"))
	} else if r.Branch == r.BaseBranch {
		problems = append(problems, fmt.Errorf("feature branch %q is the base branch", r.Branch))
	}
	if strings.TrimSpace(r.CommitMessage) == "" {
		problems = append(problems, errors.New("commit message is required"))
	}
	if r.Push && r.Remote == "" {
		problems = append(problems, errors.New("push requires a remote"))
	}
	for _, artifact := range r.Artifacts {
		if !filepath.IsLocal(artifact.Name) {
			problems = append(problems, fmt.Errorf("artifact name %q escapes the artifact directory", artifact.Name))
		}
	}
	return errors.Join(problems...)
}

// Result reports a completed injection.
type Result struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`

	// Base is the commit the branch was cut from.
	Base string `json:"base"`

	// Directory is the artifact directory relative to the target.
	Directory string `json:"directory"`

	// Written and Pruned are relative to Directory.
	Written []string `json:"written"`
	Pruned  []string `json:"pruned,omitempty"`

	Built  bool `json:"built"`
	Pushed bool `json:"pushed"`
}

// Inject runs the injection protocol. On a build failure it returns
// the result together with a *BuildError.
func (i *Injector) Inject(ctx context.Context, request Request) (*Result, error) {
	if err := request.validate(); err != nil {
		return nil, fmt.Errorf("invalid injection request: %w", err)
	}
	logger := i.logger.With("environment", request.Environment, "repository", request.Target, "branch", request.Branch)

	if i.locker != nil {
		lock, err := i.locker.Acquire(ctx, envlock.TargetLockName(request.Target))
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	repository := git.NewRepository(request.Target).WithIdentity(i.authorName, i.authorEmail)

	// Step 1: clean base.
	clean, err := repository.IsClean(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking target status: %w", err)
	}
	if !clean {
		return nil, fmt.Errorf("%s: %w", request.Target, ErrDirtyTarget)
	}
	if err := repository.Checkout(ctx, request.BaseBranch); err != nil {
		return nil, fmt.Errorf("checking out base branch %s: %w", request.BaseBranch, err)
	}
	relative := filepath.Join(request.ArtifactRoot, request.Environment)
	directory := filepath.Join(request.Target, relative)
	result := &Result{Branch: request.Branch, Directory: filepath.ToSlash(relative)}

	// Step 2: fresh feature branch, cut from the remote's base when the
	// clone tracks one. The local base branch may lag behind it.
	start, err := i.startPoint(ctx, repository, request)
	if err != nil {
		return nil, err
	}
	exists, err := repository.BranchExists(ctx, request.Branch)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Info("recreating feature branch from base")
		if err := repository.DeleteBranch(ctx, request.Branch); err != nil {
			return nil, fmt.Errorf("deleting stale branch %s: %w", request.Branch, err)
		}
	}
	if err := repository.CreateBranch(ctx, request.Branch, start); err != nil {
		return nil, fmt.Errorf("creating branch %s from %s: %w", request.Branch, start, err)
	}
	result.Base, err = repository.ResolveCommit(ctx, start)
	if err != nil {
		return nil, err
	}
	logger.Info("feature branch created", "from", start, "base", shortCommit(result.Base))

	// Step 3: copy.
	for _, artifact := range request.Artifacts {
		path := filepath.Join(directory, artifact.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, artifact.Content, 0o644); err != nil {
			return nil, fmt.Errorf("writing artifact %s: %w", artifact.Name, err)
		}
		result.Written = append(result.Written, filepath.ToSlash(artifact.Name))
	}

	// Step 4: prune.
	if request.Prune {
		pruned, err := prune(directory, request.Artifacts)
		if err != nil {
			return nil, err
		}
		result.Pruned = pruned
		if len(pruned) > 0 {
			logger.Info("pruned obsolete artifacts", "count", len(pruned))
		}
	}

	// Step 5: commit.
	if err := repository.AddAll(ctx, relative); err != nil {
		return nil, fmt.Errorf("staging artifacts: %w", err)
	}
	empty, err := repository.StagedDiffEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, fmt.Errorf("%s on %s: %w", request.Environment, request.Branch, ErrNothingToCommit)
	}
	result.Commit, err = repository.Commit(ctx, request.CommitMessage)
	if err != nil {
		return nil, fmt.Errorf("committing artifacts: %w", err)
	}
	logger.Info("artifacts committed", "commit", shortCommit(result.Commit), "files", len(result.Written))

	// Step 6: build.
	if len(request.BuildCommand) > 0 {
		if err := i.build(ctx, request, result.Commit); err != nil {
			return result, err
		}
		result.Built = true
		logger.Info("build succeeded")
	}

	if request.Push {
		if err := repository.Push(ctx, request.Remote, request.Branch, true); err != nil {
			return result, fmt.Errorf("pushing %s to %s: %w", request.Branch, request.Remote, err)
		}
		result.Pushed = true
		logger.Info("branch pushed", "remote", request.Remote)
	}
	return result, nil
}

// startPoint picks the ref the feature branch is cut from. With a
// remote, a push first refreshes the remote's base branch, and the
// remote-tracking ref wins over the local base whenever it exists.
func (i *Injector) startPoint(ctx context.Context, repository *git.Repository, request Request) (string, error) {
	if request.Remote == "" {
		return request.BaseBranch, nil
	}
	if request.Push {
		if err := repository.Fetch(ctx, request.Remote, request.BaseBranch); err != nil {
			return "", fmt.Errorf("fetching %s from %s: %w", request.BaseBranch, request.Remote, err)
		}
	}
	tracking := "refs/remotes/" + request.Remote + "/" + request.BaseBranch
	exists, err := repository.RefExists(ctx, tracking)
	if err != nil {
		return "", err
	}
	if !exists {
		return request.BaseBranch, nil
	}
	return tracking, nil
}

func (i *Injector) build(ctx context.Context, request Request, commit string) error {
	output, err := i.tools.Run(ctx, toolexec.Invocation{
		Name: request.BuildCommand[0],
		Args: request.BuildCommand[1:],
		Dir:  request.Target,
		Env: []string{
			"WRANGLER_ENVIRONMENT=" + request.Environment,
			"WRANGLER_BRANCH=" + request.Branch,
			"WRANGLER_COMMIT=" + commit,
		},
		Timeout: request.BuildTimeout,
	})
	if err == nil {
		return nil
	}
	buildErr := &BuildError{Command: request.BuildCommand, Commit: commit, Output: output, Err: err}
	var toolErr *toolexec.Error
	if errors.As(err, &toolErr) && toolErr.Stderr != "" {
		buildErr.Output = toolErr.Stderr
	}
	return buildErr
}

// prune removes files under directory that are not artifacts, then
// any directories left empty. It returns the removed files sorted.
func prune(directory string, artifacts []Artifact) ([]string, error) {
	keep := make(map[string]bool, len(artifacts))
	for _, artifact := range artifacts {
		keep[filepath.ToSlash(artifact.Name)] = true
	}
	var pruned []string
	var directories []string
	err := filepath.WalkDir(directory, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(directory, path)
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if relative != "." {
				directories = append(directories, path)
			}
			return nil
		}
		if keep[filepath.ToSlash(relative)] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("pruning %s: %w", relative, err)
		}
		pruned = append(pruned, filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Deepest first so parents empty out after their children.
	sort.Sort(sort.Reverse(sort.StringSlice(directories)))
	for _, dir := range directories {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}
	sort.Strings(pruned)
	return pruned, nil
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
