// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/periogt/periogt/lib/clock"
	"github.com/periogt/periogt/lib/codec"
	"github.com/periogt/periogt/lib/stagefs"
)

const (
	marker = ".downloading"
	ttl    = 330 * time.Second
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, storage stagefs.Storage, fake *clock.FakeClock) *Manager {
	t.Helper()
	var counter atomic.Int64
	manager, err := NewManager(Options{
		Storage:  storage,
		Clock:    fake,
		Hostname: "worker-a",
		PID:      100,
		NewID: func() string {
			return fmt.Sprintf("holder-%d", counter.Add(1))
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func TestAcquireOnEmptyRoot(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	fake := clock.Fake(epoch)
	manager := newTestManager(t, memory, fake)

	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if held.Holder().ID != "holder-1" || held.Holder().PID != 100 {
		t.Errorf("Holder = %+v", held.Holder())
	}

	info, err := memory.Stat(marker)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if !info.ModTime.Equal(epoch) {
		t.Errorf("marker mtime = %v, want %v", info.ModTime, epoch)
	}

	state, err := manager.Inspect(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Present || state.Stale || state.Holder == nil || state.Holder.Hostname != "worker-a" {
		t.Errorf("Inspect = %+v", state)
	}
}

func TestAcquireFreshMarkerIsBusyWithoutWrites(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	memory.Put(marker, nil, epoch)
	fake := clock.Fake(epoch.Add(ttl - time.Second))
	manager := newTestManager(t, memory, fake)

	_, err := manager.Acquire(context.Background(), marker, ttl)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Acquire error = %v, want ErrBusy", err)
	}
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("error %T is not *BusyError", err)
	}
	if busy.State.Age != ttl-time.Second {
		t.Errorf("Age = %v", busy.State.Age)
	}
	if busy.RetryAfter() != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", busy.RetryAfter())
	}
	if ops := memory.Operations(); len(ops) != 0 {
		t.Errorf("busy acquire performed writes: %v", ops)
	}
}

func TestAcquireTakesOverStaleMarker(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	memory.Put(marker, []byte("downloading"), epoch)
	fake := clock.Fake(epoch.Add(ttl))
	manager := newTestManager(t, memory, fake)

	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatalf("Acquire on stale marker: %v", err)
	}
	info, _ := memory.Stat(marker)
	if !info.ModTime.Equal(fake.Now()) {
		t.Errorf("marker mtime = %v, want %v", info.ModTime, fake.Now())
	}
	ops := memory.Operations()
	if len(ops) == 0 || ops[0] != (stagefs.Operation{Kind: "remove", Name: marker}) {
		t.Errorf("first operation = %v, want removal of stale marker", ops)
	}
	if held.IsStale(fake.Now()) {
		t.Error("fresh lease reports stale")
	}
}

func TestFutureDatedMarkerIsFresh(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	memory.Put(marker, nil, epoch.Add(time.Hour))
	manager := newTestManager(t, memory, clock.Fake(epoch))

	state, err := manager.Inspect(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}
	if state.Age != 0 || state.Stale {
		t.Errorf("future marker: Age=%v Stale=%v", state.Age, state.Stale)
	}
}

func TestLeaseIsStale(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	fake := clock.Fake(epoch)
	manager := newTestManager(t, memory, fake)
	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		offset time.Duration
		stale  bool
	}{
		{0, false},
		{ttl - time.Nanosecond, false},
		{ttl, true},
		{2 * ttl, true},
	}
	for _, test := range tests {
		if got := held.IsStale(epoch.Add(test.offset)); got != test.stale {
			t.Errorf("IsStale(+%v) = %v, want %v", test.offset, got, test.stale)
		}
	}
}

func TestRefreshExtendsLease(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	fake := clock.Fake(epoch)
	manager := newTestManager(t, memory, fake)
	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(ttl - time.Second)
	if err := held.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fake.Advance(2 * time.Second)
	if held.IsStale(fake.Now()) {
		t.Error("refreshed lease reports stale")
	}

	// A second worker still sees it as fresh.
	other := newTestManager(t, memory, fake)
	if _, err := other.Acquire(context.Background(), marker, ttl); !errors.Is(err, ErrBusy) {
		t.Errorf("second worker Acquire = %v, want ErrBusy", err)
	}
}

func TestRefreshAfterTakeoverIsLost(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	fake := clock.Fake(epoch)
	first, err := newTestManager(t, memory, fake).Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(ttl)
	second := newTestManager(t, memory, fake)
	second.newID = func() string { return "usurper" }
	taker, err := second.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}

	if err := first.Refresh(context.Background()); !errors.Is(err, ErrLost) {
		t.Errorf("Refresh after takeover = %v, want ErrLost", err)
	}
	// Releasing the old lease must not remove the new holder's marker.
	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	state, _ := second.Inspect(context.Background(), marker, ttl)
	if !state.Present || state.Holder == nil || state.Holder.ID != taker.Holder().ID {
		t.Errorf("marker after stale release = %+v", state)
	}
}

func TestReleaseRemovesMarkerOnce(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	manager := newTestManager(t, memory, clock.Fake(epoch))
	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatal(err)
	}
	if err := held.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := held.Release(context.Background()); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if names := memory.Names(); len(names) != 0 {
		t.Errorf("files after release: %v", names)
	}
	if err := held.Refresh(context.Background()); !errors.Is(err, ErrLost) {
		t.Errorf("Refresh after Release = %v, want ErrLost", err)
	}
}

func TestAcquireLosesRaceToLaterWriter(t *testing.T) {
	memory := stagefs.NewMemory("/vol")
	fake := clock.Fake(epoch)
	manager := newTestManager(t, memory, fake)

	racerBody, err := codec.Marshal(Holder{ID: "racer", Hostname: "worker-b", PID: 200, AcquiredAt: epoch})
	if err != nil {
		t.Fatal(err)
	}
	manager.storage = &overwriteAfterWrite{Storage: memory, overwrite: func() {
		memory.WriteFileAtomic(marker, racerBody, fake.Now())
	}}

	_, err = manager.Acquire(context.Background(), marker, ttl)
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("Acquire error = %v, want *BusyError", err)
	}
	if busy.State.Holder == nil || busy.State.Holder.ID != "racer" {
		t.Errorf("busy holder = %+v, want racer", busy.State.Holder)
	}
}

// overwriteAfterWrite runs overwrite once, after the first commit, to
// model a second worker whose marker write lands last.
type overwriteAfterWrite struct {
	stagefs.Storage
	overwrite func()
	done      bool
}

func (o *overwriteAfterWrite) Commit(ctx context.Context) error {
	if err := o.Storage.Commit(ctx); err != nil {
		return err
	}
	if !o.done {
		o.done = true
		o.overwrite()
	}
	return nil
}

func TestAcquireOnDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "checkpoints")
	disk, err := stagefs.NewDisk(root)
	if err != nil {
		t.Fatal(err)
	}
	fake := clock.Fake(epoch)
	manager := newTestManager(t, disk, fake)

	held, err := manager.Acquire(context.Background(), marker, ttl)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	info, err := disk.Stat(marker)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime.Equal(epoch) {
		t.Errorf("disk marker mtime = %v, want %v", info.ModTime, epoch)
	}
	if err := held.Release(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := disk.Stat(marker); err == nil {
		t.Error("marker still present after Release")
	}
}

func TestNewManagerRequiresStorage(t *testing.T) {
	if _, err := NewManager(Options{}); err == nil {
		t.Error("NewManager without storage succeeded")
	}
}

func TestAcquireRejectsNonPositiveTTL(t *testing.T) {
	manager := newTestManager(t, stagefs.NewMemory("/vol"), clock.Fake(epoch))
	if _, err := manager.Acquire(context.Background(), marker, 0); err == nil {
		t.Error("Acquire with zero ttl succeeded")
	}
}
