// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runtimestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/propindex"
	"github.com/periogt/periogt/lib/stagefs"
)

// LabelStats are the normalization constants for one property.
type LabelStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Loader loads the checkpoint for one property onto a device.
type Loader interface {
	Load(ctx context.Context, propertyID string, entry propindex.Entry, target device.Device) (any, error)
}

// Options configures Load.
type Options struct {
	// Storage is the staging root. Required.
	Storage stagefs.Storage

	// Device is the approved execution device.
	Device device.Device

	// Loader loads per-property checkpoints. Nil means CheckpointLoader.
	Loader Loader

	Logger *slog.Logger
}

// State is the loaded runtime.
type State struct {
	index      propindex.Index
	labels     map[string]LabelStats
	scalerPath string
	device     device.Device
	loader     Loader
	logger     *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	loaded map[string]any
}

// Load reads the index, label statistics, and scaler location from a
// bootstrapped staging root. Any missing or empty artifact fails with
// [failure.CodeCheckpointMissing] naming the expected path.
func Load(ctx context.Context, options Options) (*State, error) {
	if options.Storage == nil {
		return nil, fmt.Errorf("runtimestate: Storage is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loader := options.Loader
	if loader == nil {
		loader = CheckpointLoader{}
	}
	storage := options.Storage
	if err := storage.Refresh(ctx); err != nil {
		return nil, err
	}

	index, err := loadIndex(storage)
	if err != nil {
		return nil, err
	}
	labels, err := loadLabelStats(storage)
	if err != nil {
		return nil, err
	}
	if _, err := storage.Stat(catalog.ScalerFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, missing(storage, catalog.ScalerFile, "required artifact missing: %s", catalog.ScalerFile)
		}
		return nil, fmt.Errorf("checking %s: %w", catalog.ScalerFile, err)
	}

	logger.Info("runtime state loaded",
		"staging_root", storage.Root(),
		"properties", len(index),
		"device", options.Device.String(),
	)
	return &State{
		index:      index,
		labels:     labels,
		scalerPath: expectedPath(storage, catalog.ScalerFile),
		device:     options.Device,
		loader:     loader,
		logger:     logger,
		loaded:     make(map[string]any),
	}, nil
}

func loadIndex(storage stagefs.Storage) (propindex.Index, error) {
	data, err := storage.ReadFile(catalog.IndexFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing(storage, catalog.IndexFile, "required artifact missing: %s; run `periogt setup` first", catalog.IndexFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", catalog.IndexFile, err)
	}
	index, err := propindex.Decode(data)
	if err != nil || len(index) == 0 {
		failed := missing(storage, catalog.IndexFile, "%s exists but is empty or invalid", catalog.IndexFile)
		if err != nil {
			failed = failed.Wrap(err)
		}
		return nil, failed
	}
	return index, nil
}

func loadLabelStats(storage stagefs.Storage) (map[string]LabelStats, error) {
	data, err := storage.ReadFile(catalog.LabelStatsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing(storage, catalog.LabelStatsFile, "required artifact missing: %s", catalog.LabelStatsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", catalog.LabelStatsFile, err)
	}
	var labels map[string]LabelStats
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, failure.ModelLoadFailed("parsing %s", catalog.LabelStatsFile).
			Wrap(err).
			With("path", expectedPath(storage, catalog.LabelStatsFile))
	}
	return labels, nil
}

func expectedPath(storage stagefs.Storage, name string) string {
	return filepath.Join(storage.Root(), filepath.FromSlash(name))
}

func missing(storage stagefs.Storage, name, format string, args ...any) *failure.Error {
	return failure.CheckpointMissing(format, args...).With("path", expectedPath(storage, name))
}

// Property is the public description of one indexed property.
type Property struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Units string `json:"units"`
}

// Properties lists the indexed properties, sorted by id.
func (s *State) Properties() []Property {
	properties := make([]Property, 0, len(s.index))
	for _, id := range s.index.IDs() {
		entry := s.index[id]
		properties = append(properties, Property{ID: id, Label: entry.Label, Units: entry.Units})
	}
	return properties
}

// Index returns the property index.
func (s *State) Index() propindex.Index { return s.index }

// Device returns the approved execution device.
func (s *State) Device() device.Device { return s.device }

// ScalerPath returns the absolute path of the descriptor scaler.
func (s *State) ScalerPath() string { return s.scalerPath }

// Labels returns the normalization constants for a property. The
// second result is false when label_stats.json has no entry for it.
func (s *State) Labels(propertyID string) (LabelStats, bool) {
	stats, ok := s.labels[propertyID]
	return stats, ok
}

// Checkpoint returns the loaded checkpoint for a property, loading it
// on first use. An id absent from the index fails with
// [failure.CodeValidation].
func (s *State) Checkpoint(ctx context.Context, propertyID string) (any, error) {
	entry, ok := s.index[propertyID]
	if !ok {
		return nil, failure.Validation("unknown property %q", propertyID).
			With("property", propertyID).
			With("available", s.index.IDs())
	}

	if value, ok := s.cached(propertyID); ok {
		return value, nil
	}

	value, err, shared := s.group.Do(propertyID, func() (any, error) {
		if value, ok := s.cached(propertyID); ok {
			return value, nil
		}
		value, err := s.loader.Load(ctx, propertyID, entry, s.device)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.loaded[propertyID] = value
		s.mu.Unlock()
		s.logger.Info("checkpoint loaded", "property", propertyID, "checkpoint", entry.Checkpoint)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("checkpoint load shared", "property", propertyID)
	}
	return value, nil
}

func (s *State) cached(propertyID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.loaded[propertyID]
	return value, ok
}

// Loaded returns the ids whose checkpoints are in memory, sorted.
func (s *State) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Warm loads the named properties (all indexed properties when ids is
// empty) with at most parallelism loads in flight. The first failure
// cancels the rest.
func (s *State) Warm(ctx context.Context, ids []string, parallelism int) error {
	if len(ids) == 0 {
		ids = s.index.IDs()
	}
	group, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		group.SetLimit(parallelism)
	}
	for _, id := range ids {
		group.Go(func() error {
			_, err := s.Checkpoint(ctx, id)
			return err
		})
	}
	return group.Wait()
}
