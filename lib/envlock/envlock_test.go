// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/testutil"
)

func TestTryAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	locker := New(t.TempDir(), clock.Real())
	name := EnvironmentLockName(testutil.UniqueID("env"))

	first, err := locker.TryAcquire(name)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	// flock locks are per open file description, so a second open in
	// the same process conflicts just like another process would.
	if _, err := locker.TryAcquire(name); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryAcquire error = %v, want ErrLocked", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := locker.TryAcquire(name)
	if err != nil {
		t.Fatalf("TryAcquire after release: %v", err)
	}
	second.Release()
	if err := second.Release(); err != nil {
		t.Errorf("double Release: %v", err)
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	locker := New(t.TempDir(), fake)
	name := TargetLockName("/srv/deploy/../deploy")

	held, err := locker.TryAcquire(name)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		lock, err := locker.Acquire(context.Background(), name)
		if err == nil {
			lock.Release()
		}
		acquired <- err
	}()

	fake.WaitForTimers(1)
	held.Release()
	fake.Advance(locker.PollInterval)

	if err := testutil.RequireReceive(t, acquired, 5*time.Second, "waiting for Acquire"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestAcquire_Cancelled(t *testing.T) {
	t.Parallel()

	locker := New(t.TempDir(), clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	name := EnvironmentLockName("busy")
	held, err := locker.TryAcquire(name)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Acquire(ctx, name); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire error = %v, want context.Canceled", err)
	}
}
