// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envlock provides exclusive, cross-process locks keyed by
// name. The lifecycle driver holds one per environment for the
// duration of a transition, and the injection workflow holds one per
// target clone, so two wrangler processes never install into the same
// environment or commit into the same working tree at once.
//
// Locks are flock(2) locks on files under a lock directory. The kernel
// releases them when the holding process exits, so a crashed run never
// leaves a stale lock behind.
package envlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/wrangler/lib/clock"
)

// ErrLocked is returned by TryAcquire when another holder has the lock.
var ErrLocked = errors.New("lock held by another process")

// Locker acquires named locks inside a directory.
type Locker struct {
	dir   string
	clock clock.Clock

	// PollInterval is how often Acquire retries a held lock.
	PollInterval time.Duration
}

// New returns a Locker keeping lock files in dir.
func New(dir string, clock clock.Clock) *Locker {
	return &Locker{dir: dir, clock: clock, PollInterval: 250 * time.Millisecond}
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	name string
	path string
	fd   int
}

// Name returns the lock's name.
func (l *Lock) Name() string { return l.name }

var unsafeCharacters = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// path maps a lock name to its file. Names from different namespaces
// ("env:roman", "target:/srv/deploy") never collide because the
// namespace prefix survives sanitization.
func (l *Locker) path(name string) string {
	return filepath.Join(l.dir, unsafeCharacters.ReplaceAllString(name, "_")+".lock")
}

// TryAcquire takes the lock without waiting, returning ErrLocked when
// it is held elsewhere.
func (l *Locker) TryAcquire(name string) (*Lock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := l.path(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", name, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lock{name: name, path: path, fd: fd}, nil
}

// Acquire takes the lock, waiting until it is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	for {
		lock, err := l.TryAcquire(name)
		if err == nil || !errors.Is(err, ErrLocked) {
			return lock, err
		}
		if err := clock.Wait(ctx, l.clock, l.PollInterval); err != nil {
			return nil, fmt.Errorf("waiting for lock %s: %w", name, err)
		}
	}
}

// Release drops the lock. The lock file stays for reuse.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	unlockErr := unix.Flock(l.fd, unix.LOCK_UN)
	closeErr := unix.Close(l.fd)
	l.fd = -1
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", l.path, closeErr)
	}
	return nil
}

// EnvironmentLockName names the lock guarding an environment.
func EnvironmentLockName(environmentID string) string {
	return "env:" + environmentID
}

// TargetLockName names the lock guarding an injection target clone.
func TargetLockName(dir string) string {
	return "target:" + filepath.Clean(dir)
}
