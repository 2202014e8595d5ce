// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AdvanceFiresInOrder(t *testing.T) {
	t.Parallel()

	fake := Fake(epoch)
	late := fake.After(3 * time.Second)
	early := fake.After(1 * time.Second)

	fake.Advance(2 * time.Second)
	select {
	case got := <-early:
		if !got.Equal(epoch.Add(2 * time.Second)) {
			t.Errorf("early fired at %v", got)
		}
	default:
		t.Fatal("waiter with a passed deadline did not fire")
	}
	select {
	case <-late:
		t.Fatal("waiter fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case <-late:
	default:
		t.Fatal("late waiter did not fire")
	}
}

func TestFakeClock_WaitForTimers(t *testing.T) {
	t.Parallel()

	fake := Fake(epoch)
	done := make(chan error, 1)
	go func() {
		done <- Wait(context.Background(), fake, 5*time.Second)
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestFakeClock_AutoAdvance(t *testing.T) {
	t.Parallel()

	fake := Fake(epoch)
	fake.SetAutoAdvance(true)

	if err := Wait(context.Background(), fake, time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := Wait(context.Background(), fake, 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got, want := fake.Now(), epoch.Add(3*time.Second); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, fake.Waited()); diff != "" {
		t.Errorf("Waited mismatch (-want +got):\n%s", diff)
	}
}

func TestWait_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, Fake(epoch), time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled context = %v, want context.Canceled", err)
	}
}
