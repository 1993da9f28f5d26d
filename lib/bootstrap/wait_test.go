// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/clock"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/stagefs"
	"github.com/periogt/periogt/lib/testutil"
)

type waitOutcome struct {
	result *Result
	err    error
}

func TestWaitReadyTakesOverOnceStale(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	putTree(memory, provisioned)
	memory.Put(DownloadingMarker, nil, epoch)
	fake := clock.Fake(epoch.Add(10 * time.Second))
	coordinator := newMemoryCoordinator(t, memory, fake, &fakeFetcher{})

	done := make(chan waitOutcome, 1)
	go func() {
		result, err := WaitReady(context.Background(), coordinator, true, WaitOptions{
			InitialBackoff: time.Hour,
			Clock:          fake,
		})
		done <- waitOutcome{result, err}
	}()

	// The only pending timer is the wait until the lease goes stale.
	fake.WaitForTimers(1)
	fake.Advance(DefaultStaleAfter - 10*time.Second)

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "waiting for WaitReady")
	if outcome.err != nil {
		t.Fatalf("WaitReady: %v", outcome.err)
	}
	if outcome.result.Outcome != OutcomeBootstrapped {
		t.Errorf("outcome = %q", outcome.result.Outcome)
	}
}

func TestWaitReadyBacksOff(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	memory.Put(DownloadingMarker, nil, epoch)
	fake := clock.Fake(epoch)
	coordinator := newMemoryCoordinator(t, memory, fake, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan waitOutcome, 1)
	go func() {
		result, err := WaitReady(ctx, coordinator, true, WaitOptions{
			InitialBackoff: time.Second,
			MaxBackoff:     4 * time.Second,
			Clock:          fake,
		})
		done <- waitOutcome{result, err}
	}()

	start := fake.Now()
	for _, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		fake.WaitForTimers(1)
		fake.Advance(delay)
	}
	if elapsed := fake.Now().Sub(start); elapsed != 11*time.Second {
		t.Errorf("elapsed = %v", elapsed)
	}
	fake.WaitForTimers(1)
	cancel()

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "waiting for cancelled WaitReady")
	if !errors.Is(outcome.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", outcome.err)
	}
}

func TestWaitReadyReturnsOtherErrors(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	coordinator := newMemoryCoordinator(t, memory, clock.Fake(epoch), &fakeFetcher{
		err: failure.ChecksumMismatch(catalog.Default().Artifacts[0].Name, "md5:aa", "md5:bb"),
	})
	_, err := WaitReady(context.Background(), coordinator, false, WaitOptions{Clock: clock.Fake(epoch)})
	if !failure.Is(err, failure.CodeChecksumMismatch) {
		t.Errorf("error = %v, want checksum_mismatch", err)
	}
}
