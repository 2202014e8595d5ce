// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package repos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/git"
)

// LocalChangesPolicy decides what happens to uncommitted changes in an
// existing clone before it is moved to a new revision.
type LocalChangesPolicy string

const (
	// FailOnLocalChanges refuses to touch a modified clone.
	FailOnLocalChanges LocalChangesPolicy = "fail"

	// OverwriteLocalChanges discards modifications and untracked files.
	OverwriteLocalChanges LocalChangesPolicy = "overwrite"

	// StashLocalChanges stashes modifications, including untracked files.
	StashLocalChanges LocalChangesPolicy = "stash"
)

// ParseLocalChangesPolicy validates a policy name. Empty means fail.
func ParseLocalChangesPolicy(name string) (LocalChangesPolicy, error) {
	switch LocalChangesPolicy(name) {
	case "", FailOnLocalChanges:
		return FailOnLocalChanges, nil
	case OverwriteLocalChanges, StashLocalChanges:
		return LocalChangesPolicy(name), nil
	}
	return "", fmt.Errorf("unknown local changes policy %q (want fail, overwrite, or stash)", name)
}

var (
	// ErrRevisionNotFound means the repository has no such revision.
	// Retrying will not help.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrLocalChanges means the clone has uncommitted changes and the
	// policy is to fail.
	ErrLocalChanges = errors.New("clone has local changes")

	// ErrForeignClone means the destination holds a clone of a
	// different URL.
	ErrForeignClone = errors.New("destination holds a different repository")
)

// Reference names a repository at a revision.
type Reference struct {
	// Name labels the reference in logs and errors.
	Name string

	URL string

	// Revision is a commit sha, branch, or tag. Empty means the
	// remote's default branch.
	Revision string
}

// CloneError reports a failed clone.
type CloneError struct {
	Reference Reference
	Dir       string
	Err       error
}

func (e *CloneError) Error() string {
	revision := e.Reference.Revision
	if revision == "" {
		revision = "default branch"
	}
	return fmt.Sprintf("cloning %s (%s at %s) into %s: %v",
		e.Reference.Name, e.Reference.URL, revision, e.Dir, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// Retryable reports whether a retry might succeed. Missing revisions,
// local changes, and foreign clones need a human.
func (e *CloneError) Retryable() bool {
	return !errors.Is(e.Err, ErrRevisionNotFound) &&
		!errors.Is(e.Err, ErrLocalChanges) &&
		!errors.Is(e.Err, ErrForeignClone) &&
		!errors.Is(e.Err, context.Canceled)
}

// Action describes what Clone did.
type Action string

const (
	ActionCloned    Action = "cloned"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// CloneResult describes a materialized repository.
type CloneResult struct {
	Reference Reference
	Dir       string

	// Commit is the full sha checked out.
	Commit string

	Action Action
}

// Config configures a Manager.
type Config struct {
	// Root is the directory clones are placed under.
	Root string

	// OnLocalChanges is the policy for modified clones.
	OnLocalChanges LocalChangesPolicy

	// Logger receives progress records. Nil discards.
	Logger *slog.Logger
}

// Manager clones repositories into deterministic directories.
type Manager struct {
	root   string
	policy LocalChangesPolicy
	logger *slog.Logger
}

// New returns a Manager.
func New(config Config) *Manager {
	manager := &Manager{
		root:   config.Root,
		policy: config.OnLocalChanges,
		logger: config.Logger,
	}
	if manager.policy == "" {
		manager.policy = FailOnLocalChanges
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return manager
}

// Root returns the clone root.
func (m *Manager) Root() string {
	return m.root
}

// Destination returns the directory a URL clones into.
func (m *Manager) Destination(repositoryURL string) (string, error) {
	relative, err := DestinationPath(repositoryURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.root, relative), nil
}

// DestinationPath maps a clone URL to a relative directory:
// host/owner/name for network URLs and local/<path> for filesystem
// paths. A trailing ".git" is dropped.
func DestinationPath(repositoryURL string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimRight(repositoryURL, "/"), ".git")
	var host, path string

	switch {
	case strings.Contains(trimmed, "://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("parsing repository url %q: %w", repositoryURL, err)
		}
		host, path = parsed.Hostname(), parsed.Path
		if parsed.Scheme == "file" {
			host = "local"
		}
	case strings.HasPrefix(trimmed, "/"):
		host, path = "local", trimmed
	default:
		// scp-like syntax: [user@]host:path
		at := strings.LastIndex(trimmed, "@")
		colon := strings.Index(trimmed, ":")
		if colon < 0 || colon < at {
			return "", fmt.Errorf("repository url %q has no recognizable host", repositoryURL)
		}
		host, path = trimmed[at+1:colon], trimmed[colon+1:]
	}

	var parts []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("repository url %q contains a parent-directory component", repositoryURL)
		}
		parts = append(parts, part)
	}
	if host == "" || len(parts) == 0 {
		return "", fmt.Errorf("repository url %q has no repository path", repositoryURL)
	}
	return filepath.Join(append([]string{host}, parts...)...), nil
}

// Status describes the local clone of a reference.
type Status struct {
	Dir string `json:"dir"`

	// Present is true when Dir holds a git repository.
	Present bool `json:"present"`

	// Commit is the checked-out commit, when Present.
	Commit string `json:"commit,omitempty"`

	// AtRevision is true when the revision is a full commit sha and
	// Commit equals it. Branch and tag revisions are never at
	// revision without a fetch.
	AtRevision bool `json:"at_revision"`
}

// Status inspects the local clone of a reference without touching the
// network.
func (m *Manager) Status(ctx context.Context, reference Reference) (Status, error) {
	dir, err := m.Destination(reference.URL)
	if err != nil {
		return Status{}, err
	}
	status := Status{Dir: dir}
	if !isRepository(dir) {
		return status, nil
	}
	status.Present = true
	head, err := git.NewRepository(dir).Head(ctx)
	if err != nil {
		return status, err
	}
	status.Commit = head
	status.AtRevision = isFullSHA(reference.Revision) && head == reference.Revision
	return status, nil
}

// Clone materializes the reference at its revision.
func (m *Manager) Clone(ctx context.Context, reference Reference) (*CloneResult, error) {
	dir, err := m.Destination(reference.URL)
	if err != nil {
		return nil, &CloneError{Reference: reference, Err: err}
	}
	fail := func(err error) (*CloneResult, error) {
		return nil, &CloneError{Reference: reference, Dir: dir, Err: err}
	}
	logger := m.logger.With("repository", reference.Name, "url", reference.URL, "revision", reference.Revision)

	action := ActionUpdated
	var repository *git.Repository
	if isRepository(dir) {
		repository = git.NewRepository(dir)
		if err := m.checkExisting(ctx, repository, reference, logger); err != nil {
			return fail(err)
		}
		if isFullSHA(reference.Revision) {
			if head, _ := repository.Head(ctx); head == reference.Revision {
				logger.Debug("clone already at revision", "dir", dir)
				return &CloneResult{Reference: reference, Dir: dir, Commit: head, Action: ActionUnchanged}, nil
			}
		}
		if err := repository.Fetch(ctx, "origin"); err != nil {
			return fail(err)
		}
	} else {
		repository, err = m.cloneFresh(ctx, reference.URL, dir)
		if err != nil {
			return fail(err)
		}
		action = ActionCloned
	}

	commit, err := resolveRevision(ctx, repository, reference.Revision)
	if err != nil {
		return fail(err)
	}
	if err := repository.CheckoutDetached(ctx, commit); err != nil {
		return fail(err)
	}
	logger.Info("repository materialized", "dir", dir, "commit", commit, "action", action)
	return &CloneResult{Reference: reference, Dir: dir, Commit: commit, Action: action}, nil
}

// Remove deletes the local clone of a reference and any parent
// directories under the root it leaves empty. It reports whether a
// clone was removed. A clone of a different repository is refused, and
// a clone with local changes is refused unless the policy is
// OverwriteLocalChanges.
func (m *Manager) Remove(ctx context.Context, reference Reference) (bool, error) {
	dir, err := m.Destination(reference.URL)
	if err != nil {
		return false, err
	}
	if !isRepository(dir) {
		return false, nil
	}
	fail := func(err error) (bool, error) {
		return false, &CloneError{Reference: reference, Dir: dir, Err: err}
	}
	repository := git.NewRepository(dir)
	remote, err := repository.RemoteURL(ctx, "origin")
	if err != nil {
		return fail(err)
	}
	if !sameRepository(remote, reference.URL) {
		return fail(fmt.Errorf("%w: origin is %s", ErrForeignClone, remote))
	}
	status, err := repository.Status(ctx)
	if err != nil {
		return fail(err)
	}
	if len(status) > 0 && m.policy != OverwriteLocalChanges {
		return fail(fmt.Errorf("%w (%d paths, first: %s); use --overwrite-local-changes to delete anyway",
			ErrLocalChanges, len(status), strings.TrimSpace(status[0])))
	}

	if err := os.RemoveAll(dir); err != nil {
		return fail(fmt.Errorf("removing clone: %w", err))
	}
	root := filepath.Clean(m.root)
	for parent := filepath.Dir(dir); parent != root && strings.HasPrefix(parent, root); parent = filepath.Dir(parent) {
		if os.Remove(parent) != nil {
			break
		}
	}
	m.logger.Info("clone removed", "repository", reference.Name, "dir", dir)
	return true, nil
}

// checkExisting verifies an existing clone belongs to the reference
// and applies the local-changes policy.
func (m *Manager) checkExisting(ctx context.Context, repository *git.Repository, reference Reference, logger *slog.Logger) error {
	remote, err := repository.RemoteURL(ctx, "origin")
	if err != nil {
		return err
	}
	if !sameRepository(remote, reference.URL) {
		return fmt.Errorf("%w: origin is %s", ErrForeignClone, remote)
	}

	status, err := repository.Status(ctx)
	if err != nil {
		return err
	}
	if len(status) == 0 {
		return nil
	}
	switch m.policy {
	case OverwriteLocalChanges:
		logger.Warn("discarding local changes", "changes", len(status))
		return repository.Discard(ctx)
	case StashLocalChanges:
		logger.Warn("stashing local changes", "changes", len(status))
		// Stashing creates a commit, which needs an identity even
		// where none is configured.
		return repository.WithIdentity("wrangler", "wrangler@localhost").
			Stash(ctx, "wrangler: stashed before checkout")
	default:
		return fmt.Errorf("%w (%d paths, first: %s); use --overwrite-local-changes or --stash-local-changes",
			ErrLocalChanges, len(status), strings.TrimSpace(status[0]))
	}
}

// cloneFresh clones into a temporary sibling of dir and renames it
// into place.
func (m *Manager) cloneFresh(ctx context.Context, repositoryURL, dir string) (*git.Repository, error) {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", parent, err)
	}
	// A directory without .git is debris from an interrupted run.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing incomplete clone %s: %w", dir, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if _, err := git.Clone(ctx, repositoryURL, filepath.Join(staging, "tree")); err != nil {
		return nil, err
	}
	if err := os.Rename(filepath.Join(staging, "tree"), dir); err != nil {
		return nil, fmt.Errorf("moving clone into place: %w", err)
	}
	return git.NewRepository(dir), nil
}

// resolveRevision maps a revision to a commit sha. Remote branches win
// over tags, and both win over local names, which go stale between
// fetches.
func resolveRevision(ctx context.Context, repository *git.Repository, revision string) (string, error) {
	var candidates []string
	switch {
	case revision == "":
		candidates = []string{"origin/HEAD"}
	case isFullSHA(revision):
		candidates = []string{revision}
	default:
		candidates = []string{"refs/remotes/origin/" + revision, "refs/tags/" + revision, revision}
	}
	for _, candidate := range candidates {
		commit, err := repository.ResolveCommit(ctx, candidate)
		if err != nil {
			return "", err
		}
		if commit != "" {
			return commit, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRevisionNotFound, revision)
}

func isRepository(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func isFullSHA(revision string) bool {
	if len(revision) != 40 {
		return false
	}
	for _, character := range revision {
		if !strings.ContainsRune("0123456789abcdef", character) {
			return false
		}
	}
	return true
}

// sameRepository compares clone URLs by destination, so that
// "https://host/o/r" and "https://host/o/r.git" match.
func sameRepository(a, b string) bool {
	pathA, errA := DestinationPath(a)
	pathB, errB := DestinationPath(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pathA == pathB
}
