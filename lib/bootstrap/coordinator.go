// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/clock"
	"github.com/periogt/periogt/lib/extract"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/fetch"
	"github.com/periogt/periogt/lib/lease"
	"github.com/periogt/periogt/lib/propindex"
	"github.com/periogt/periogt/lib/stagefs"
)

// Marker names under the staging root.
const (
	ReadyMarker       = ".ready"
	DownloadingMarker = ".downloading"
)

// DefaultStaleAfter is how old a download lease must be before another
// worker may take it over. It exceeds the 300 s serving timeout of the
// deployment so a live bootstrap is never judged dead.
const DefaultStaleAfter = 330 * time.Second

// Fetcher downloads and verifies one archive.
type Fetcher interface {
	FetchVerified(ctx context.Context, descriptor catalog.Descriptor, destinationDir string) (string, error)
}

// Extractor unpacks one archive and deletes it.
type Extractor interface {
	ExtractAndDiscard(ctx context.Context, archivePath, destinationDir string) (extract.Result, error)
}

// Options configures a Coordinator.
type Options struct {
	Storage stagefs.Storage
	Catalog *catalog.Catalog

	// Fetcher defaults to a fetch.Verifier with no object store.
	// When the fetcher is a *fetch.Verifier, download progress is
	// used to keep the lease fresh.
	Fetcher Fetcher

	// Extractor defaults to an extract.Stager.
	Extractor Extractor

	// Layouts for index building; nil means propindex.DefaultLayouts.
	Layouts []propindex.Layout

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// Leases overrides the lease manager, mainly so tests can pin
	// holder identities. Built from Storage, Clock and Logger when nil.
	Leases *lease.Manager
}

// Coordinator drives one staging root to READY.
type Coordinator struct {
	storage    stagefs.Storage
	catalog    *catalog.Catalog
	fetcher    Fetcher
	extractor  Extractor
	builder    propindex.Builder
	staleAfter time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	leases     *lease.Manager
}

// Outcome says how EnsureReady produced its index.
type Outcome string

const (
	// OutcomeCached means the root was READY and the index was read.
	OutcomeCached Outcome = "cached"
	// OutcomeRebuilt means the root was READY but the index had to be
	// rebuilt from the extracted tree.
	OutcomeRebuilt Outcome = "rebuilt"
	// OutcomeBootstrapped means this call ran the critical section.
	OutcomeBootstrapped Outcome = "bootstrapped"
)

// Result is the product of a successful EnsureReady.
type Result struct {
	Index propindex.Index
	// Encoded is the exact index document on storage.
	Encoded []byte
	Outcome Outcome
	// Layout names the index layout that matched; empty for
	// OutcomeCached.
	Layout string
}

// New validates options and returns a Coordinator.
func New(options Options) (*Coordinator, error) {
	if options.Storage == nil {
		return nil, errors.New("bootstrap: storage is required")
	}
	if options.Catalog == nil {
		return nil, errors.New("bootstrap: catalog is required")
	}
	coordinator := &Coordinator{
		storage:    options.Storage,
		catalog:    options.Catalog,
		fetcher:    options.Fetcher,
		extractor:  options.Extractor,
		builder:    propindex.Builder{Catalog: options.Catalog, Layouts: options.Layouts},
		staleAfter: options.StaleAfter,
		clock:      options.Clock,
		logger:     options.Logger,
		leases:     options.Leases,
	}
	if coordinator.staleAfter <= 0 {
		coordinator.staleAfter = DefaultStaleAfter
	}
	if coordinator.clock == nil {
		coordinator.clock = clock.Real()
	}
	if coordinator.logger == nil {
		coordinator.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	coordinator.logger = coordinator.logger.With("staging_root", options.Storage.Root())
	if coordinator.fetcher == nil {
		coordinator.fetcher = fetch.NewVerifier(fetch.Options{Logger: coordinator.logger})
	}
	if coordinator.extractor == nil {
		coordinator.extractor = extract.NewStager(coordinator.logger)
	}
	if coordinator.leases == nil {
		manager, err := lease.NewManager(lease.Options{
			Storage: options.Storage,
			Clock:   coordinator.clock,
			Logger:  coordinator.logger,
		})
		if err != nil {
			return nil, err
		}
		coordinator.leases = manager
	}
	return coordinator, nil
}

// StaleAfter returns the lease staleness threshold in use.
func (c *Coordinator) StaleAfter() time.Duration { return c.staleAfter }

// Root returns the staging root location.
func (c *Coordinator) Root() string { return c.storage.Root() }

// EnsureReady returns the property index, bootstrapping the staging
// root first if needed. With skipDownload the critical section indexes
// whatever is already on storage instead of fetching archives.
//
// A fresh lease held by another worker yields a
// [failure.CodeBootstrapInProgress] error and no writes.
func (c *Coordinator) EnsureReady(ctx context.Context, skipDownload bool) (*Result, error) {
	if err := c.storage.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refreshing staging root: %w", err)
	}

	ready, err := c.exists(ReadyMarker)
	if err != nil {
		return nil, err
	}
	if ready {
		return c.readyIndex(ctx)
	}

	held, err := c.leases.Acquire(ctx, DownloadingMarker, c.staleAfter)
	if err != nil {
		var busy *lease.BusyError
		if errors.As(err, &busy) {
			return nil, inProgress(busy)
		}
		return nil, err
	}

	result, err := c.critical(ctx, held, skipDownload)
	if err != nil {
		// Release with a fresh context: the caller's may be the
		// reason we failed, and the lease must still go.
		releaseContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if releaseErr := held.Release(releaseContext); releaseErr != nil {
			c.logger.Error("releasing download lease after failure",
				"error", releaseErr, "cause", err)
		}
		return nil, err
	}
	return result, nil
}

// readyIndex handles the READY state: read the index, or rebuild it
// when it is missing or unreadable.
func (c *Coordinator) readyIndex(ctx context.Context) (*Result, error) {
	encoded, err := c.storage.ReadFile(catalog.IndexFile)
	switch {
	case err == nil:
		index, decodeErr := propindex.Decode(encoded)
		if decodeErr == nil {
			return &Result{Index: index, Encoded: encoded, Outcome: OutcomeCached}, nil
		}
		c.logger.Warn("index unreadable on a ready root, rebuilding", "error", decodeErr)
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Warn("index missing on a ready root, rebuilding")
	default:
		return nil, fmt.Errorf("reading %s: %w", catalog.IndexFile, err)
	}

	result, err := c.buildAndPersistIndex()
	if err != nil {
		return nil, err
	}
	if err := c.storage.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing rebuilt index: %w", err)
	}
	result.Outcome = OutcomeRebuilt
	return result, nil
}

// critical runs with the lease held. It does not release the lease on
// failure; EnsureReady does.
func (c *Coordinator) critical(ctx context.Context, held *lease.Lease, skipDownload bool) (*Result, error) {
	start := c.clock.Now()
	renewer := &leaseRenewer{lease: held, clock: c.clock, interval: c.staleAfter / 3, last: start, logger: c.logger}

	if skipDownload {
		c.logger.Info("skipping artifact download")
	} else {
		fetcher := c.fetcher
		if verifier, ok := fetcher.(*fetch.Verifier); ok {
			fetcher = verifier.WithProgress(func(string, int64, int64) { renewer.tick(ctx) })
		}
		for _, descriptor := range c.catalog.Artifacts {
			archive, err := fetcher.FetchVerified(ctx, descriptor, c.storage.Root())
			if err != nil {
				return nil, err
			}
			if err := renewer.check(ctx); err != nil {
				return nil, err
			}
			if _, err := c.extractor.ExtractAndDiscard(ctx, archive, c.storage.Root()); err != nil {
				return nil, err
			}
			if err := renewer.check(ctx); err != nil {
				return nil, err
			}
		}
	}

	result, err := c.buildAndPersistIndex()
	if err != nil {
		return nil, err
	}
	if err := c.storage.WriteFileAtomic(ReadyMarker, nil, c.clock.Now()); err != nil {
		return nil, fmt.Errorf("writing ready marker: %w", err)
	}
	if err := held.Release(ctx); err != nil {
		return nil, err
	}
	if err := c.storage.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing bootstrap: %w", err)
	}
	c.logger.Info("bootstrap complete",
		"properties", len(result.Index),
		"layout", result.Layout,
		"skip_download", skipDownload,
		"duration", c.clock.Now().Sub(start))
	result.Outcome = OutcomeBootstrapped
	return result, nil
}

func (c *Coordinator) buildAndPersistIndex() (*Result, error) {
	index, layout, err := c.builder.Build(c.storage.Root(), c.storage.FS())
	if err != nil {
		return nil, err
	}
	encoded, err := propindex.Encode(index)
	if err != nil {
		return nil, err
	}
	if err := c.storage.WriteFileAtomic(catalog.IndexFile, encoded, c.clock.Now()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", catalog.IndexFile, err)
	}
	c.logger.Info("property index written", "properties", len(index), "layout", layout)
	return &Result{Index: index, Encoded: encoded, Layout: layout}, nil
}

func (c *Coordinator) exists(name string) (bool, error) {
	_, err := c.storage.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", name, err)
}

func inProgress(busy *lease.BusyError) *failure.Error {
	err := failure.BootstrapInProgress("checkpoint bootstrap already in progress, retry later").
		Wrap(busy).
		With("lease_age_seconds", busy.State.Age.Seconds()).
		With("retry_after_seconds", busy.RetryAfter().Seconds())
	if busy.State.Holder != nil {
		err.With("holder", busy.State.Holder.ID).With("holder_host", busy.State.Holder.Hostname)
	}
	return err
}

// leaseRenewer refreshes the lease at most once per interval. It runs
// on the goroutine doing the critical-section work.
type leaseRenewer struct {
	lease    *lease.Lease
	clock    clock.Clock
	interval time.Duration
	last     time.Time
	logger   *slog.Logger
	lost     error
}

// tick is called from download progress. Losing the lease is recorded
// and surfaced by the next check.
func (r *leaseRenewer) tick(ctx context.Context) {
	if r.lost != nil || r.clock.Now().Sub(r.last) < r.interval {
		return
	}
	r.refresh(ctx)
}

// check refreshes when due and reports a lost lease.
func (r *leaseRenewer) check(ctx context.Context) error {
	if r.lost == nil && r.clock.Now().Sub(r.last) >= r.interval {
		r.refresh(ctx)
	}
	if r.lost != nil {
		return failure.BootstrapInProgress("download lease was taken over by another worker").Wrap(r.lost)
	}
	return nil
}

func (r *leaseRenewer) refresh(ctx context.Context) {
	err := r.lease.Refresh(ctx)
	switch {
	case err == nil:
		r.last = r.clock.Now()
	case errors.Is(err, lease.ErrLost):
		r.lost = err
	default:
		r.logger.Warn("refreshing download lease failed", "error", err)
	}
}
