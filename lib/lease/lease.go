// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/periogt/periogt/lib/clock"
	"github.com/periogt/periogt/lib/codec"
	"github.com/periogt/periogt/lib/stagefs"
)

// ErrBusy is matched by errors.Is for a [*BusyError].
var ErrBusy = errors.New("lease is held by another worker")

// ErrLost is returned by [Lease.Refresh] when the marker no longer
// belongs to this lease, either because it was removed or because
// another worker took it over as stale.
var ErrLost = errors.New("lease lost")

// Holder identifies the worker that wrote a marker.
type Holder struct {
	ID         string    `cbor:"id" json:"id"`
	Hostname   string    `cbor:"hostname,omitempty" json:"hostname,omitempty"`
	PID        int       `cbor:"pid" json:"pid"`
	AcquiredAt time.Time `cbor:"acquired_at" json:"acquired_at"`
}

// State describes a marker as observed at one instant.
type State struct {
	Name    string
	Present bool
	ModTime time.Time
	// Age is the time since ModTime, floored at zero when the marker
	// is dated in the future.
	Age   time.Duration
	Stale bool
	// Holder is nil when the marker body is empty or not a holder
	// record. Body keeps the raw bytes in that case.
	Holder *Holder
	Body   []byte
}

// BusyError reports a fresh marker held by someone else.
type BusyError struct {
	State State
	TTL   time.Duration
}

func (e *BusyError) Error() string {
	holder := "unknown holder"
	if e.State.Holder != nil {
		holder = fmt.Sprintf("%s (pid %d on %s)", e.State.Holder.ID, e.State.Holder.PID, e.State.Holder.Hostname)
	}
	return fmt.Sprintf("lease %s held by %s for %s, stale after %s",
		e.State.Name, holder, e.State.Age.Round(time.Second), e.TTL)
}

// Is reports ErrBusy.
func (e *BusyError) Is(target error) bool { return target == ErrBusy }

// RetryAfter is how long until the current marker would be judged stale.
func (e *BusyError) RetryAfter() time.Duration {
	if remaining := e.TTL - e.State.Age; remaining > 0 {
		return remaining
	}
	return 0
}

// IsStale reports whether a marker last written at modTime has expired
// at now. A marker exactly ttl old is stale.
func IsStale(modTime, now time.Time, ttl time.Duration) bool {
	return now.Sub(modTime) >= ttl
}

// Options configures a Manager.
type Options struct {
	Storage stagefs.Storage
	Clock   clock.Clock
	Logger  *slog.Logger

	// Hostname and PID default to the running process.
	Hostname string
	PID      int

	// NewID generates holder ids. Defaults to uuid.NewString.
	NewID func() string
}

// Manager acquires and inspects leases on one storage root.
type Manager struct {
	storage  stagefs.Storage
	clock    clock.Clock
	logger   *slog.Logger
	hostname string
	pid      int
	newID    func() string
}

// NewManager validates options and returns a Manager.
func NewManager(options Options) (*Manager, error) {
	if options.Storage == nil {
		return nil, errors.New("lease: storage is required")
	}
	manager := &Manager{
		storage:  options.Storage,
		clock:    options.Clock,
		logger:   options.Logger,
		hostname: options.Hostname,
		pid:      options.PID,
		newID:    options.NewID,
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if manager.hostname == "" {
		manager.hostname, _ = os.Hostname()
	}
	if manager.pid == 0 {
		manager.pid = os.Getpid()
	}
	if manager.newID == nil {
		manager.newID = uuid.NewString
	}
	return manager, nil
}

// Inspect reads the marker without modifying anything. ttl decides the
// Stale field.
func (m *Manager) Inspect(ctx context.Context, name string, ttl time.Duration) (State, error) {
	if err := m.storage.Refresh(ctx); err != nil {
		return State{}, fmt.Errorf("refreshing before reading lease %s: %w", name, err)
	}
	return m.inspect(name, ttl)
}

func (m *Manager) inspect(name string, ttl time.Duration) (State, error) {
	state := State{Name: name}
	info, err := m.storage.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return State{}, fmt.Errorf("reading lease %s: %w", name, err)
	}
	state.Present = true
	state.ModTime = info.ModTime

	now := m.clock.Now()
	state.Age = max(now.Sub(info.ModTime), 0)
	state.Stale = IsStale(info.ModTime, now, ttl)

	body, err := m.storage.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Removed between Stat and ReadFile: the holder released.
			return State{Name: name}, nil
		}
		return State{}, fmt.Errorf("reading lease %s: %w", name, err)
	}
	state.Body = body
	if len(body) > 0 {
		var holder Holder
		if codec.Unmarshal(body, &holder) == nil && holder.ID != "" {
			state.Holder = &holder
		}
	}
	return state, nil
}

// Acquire claims the marker called name. A fresh marker held by anyone
// yields a [*BusyError] and no writes at all. A stale marker is removed
// and replaced.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease %s: ttl must be positive, got %s", name, ttl)
	}
	state, err := m.Inspect(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	if state.Present && !state.Stale {
		return nil, &BusyError{State: state, TTL: ttl}
	}
	if state.Present {
		attrs := []any{"lease", name, "lease_age", state.Age, "ttl", ttl}
		if state.Holder != nil {
			attrs = append(attrs, "previous_holder", state.Holder.ID, "previous_host", state.Holder.Hostname)
		}
		m.logger.Warn("taking over stale lease", attrs...)
		if err := m.storage.Remove(name); err != nil {
			return nil, fmt.Errorf("removing stale lease %s: %w", name, err)
		}
	}

	if err := m.storage.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("creating staging root for lease %s: %w", name, err)
	}
	now := m.clock.Now()
	holder := Holder{
		ID:         m.newID(),
		Hostname:   m.hostname,
		PID:        m.pid,
		AcquiredAt: now,
	}
	body, err := codec.Marshal(holder)
	if err != nil {
		return nil, fmt.Errorf("encoding lease holder: %w", err)
	}
	if err := m.storage.WriteFileAtomic(name, body, now); err != nil {
		return nil, fmt.Errorf("writing lease %s: %w", name, err)
	}
	if err := m.storage.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing lease %s: %w", name, err)
	}

	// Last writer wins on shared storage. If someone else's marker is
	// what landed, they own it.
	if err := m.storage.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refreshing after writing lease %s: %w", name, err)
	}
	confirmed, err := m.inspect(name, ttl)
	if err != nil {
		return nil, err
	}
	if confirmed.Holder != nil && confirmed.Holder.ID != holder.ID {
		return nil, &BusyError{State: confirmed, TTL: ttl}
	}

	m.logger.Debug("lease acquired", "lease", name, "holder", holder.ID)
	return &Lease{
		manager:   m,
		name:      name,
		ttl:       ttl,
		holder:    holder,
		renewedAt: now,
		body:      body,
	}, nil
}

// Lease is a held marker. It is not safe for concurrent use; the
// worker that acquired it owns it.
type Lease struct {
	manager   *Manager
	name      string
	ttl       time.Duration
	holder    Holder
	renewedAt time.Time
	body      []byte
	released  bool
}

// Name returns the marker name.
func (l *Lease) Name() string { return l.name }

// Holder returns the record written into the marker.
func (l *Lease) Holder() Holder { return l.holder }

// IsStale reports whether other workers would judge this lease stale
// at now, i.e. whether it has gone a full TTL without renewal.
func (l *Lease) IsStale(now time.Time) bool {
	return IsStale(l.renewedAt, now, l.ttl)
}

// Refresh rewrites the marker with the current time so long-running
// work is not mistaken for a dead holder. It returns [ErrLost] when the
// marker is gone or belongs to someone else.
func (l *Lease) Refresh(ctx context.Context) error {
	if l.released {
		return fmt.Errorf("refreshing lease %s: %w", l.name, ErrLost)
	}
	m := l.manager
	if err := m.storage.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing lease %s: %w", l.name, err)
	}
	state, err := m.inspect(l.name, l.ttl)
	if err != nil {
		return err
	}
	if !state.Present || state.Holder == nil || state.Holder.ID != l.holder.ID {
		return fmt.Errorf("refreshing lease %s: %w", l.name, ErrLost)
	}
	now := m.clock.Now()
	if err := m.storage.WriteFileAtomic(l.name, l.body, now); err != nil {
		return fmt.Errorf("refreshing lease %s: %w", l.name, err)
	}
	if err := m.storage.Commit(ctx); err != nil {
		return fmt.Errorf("committing lease %s: %w", l.name, err)
	}
	l.renewedAt = now
	return nil
}

// Release removes the marker if it still belongs to this lease. A
// marker taken over by another worker is left alone. Calling Release
// more than once is harmless.
func (l *Lease) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	m := l.manager
	state, err := m.Inspect(ctx, l.name, l.ttl)
	if err != nil {
		return fmt.Errorf("releasing lease %s: %w", l.name, err)
	}
	l.released = true
	if state.Present && state.Holder != nil && state.Holder.ID != l.holder.ID {
		m.logger.Warn("lease was taken over before release",
			"lease", l.name, "holder", l.holder.ID, "current_holder", state.Holder.ID)
		return nil
	}
	if state.Present {
		if err := m.storage.Remove(l.name); err != nil {
			l.released = false
			return fmt.Errorf("releasing lease %s: %w", l.name, err)
		}
	}
	if err := m.storage.Commit(ctx); err != nil {
		return fmt.Errorf("committing release of lease %s: %w", l.name, err)
	}
	m.logger.Debug("lease released", "lease", l.name, "holder", l.holder.ID)
	return nil
}
