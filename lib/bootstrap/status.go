// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/lease"
	"github.com/periogt/periogt/lib/stagefs"
)

// State is the bootstrap state of a staging root.
type State string

const (
	StateAbsent      State = "absent"
	StateDownloading State = "downloading"
	// StateStale is DOWNLOADING with a lease old enough to take over.
	StateStale State = "stale"
	StateReady State = "ready"
)

// Status is a read-only snapshot of a staging root.
type Status struct {
	State State
	Lease lease.State
	// IndexPresent reports whether index.json exists.
	IndexPresent bool
}

// Status inspects the root without modifying it.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	if err := c.storage.Refresh(ctx); err != nil {
		return Status{}, fmt.Errorf("refreshing staging root: %w", err)
	}
	var status Status
	ready, err := c.exists(ReadyMarker)
	if err != nil {
		return Status{}, err
	}
	status.IndexPresent, err = c.exists(catalog.IndexFile)
	if err != nil {
		return Status{}, err
	}
	status.Lease, err = c.leases.Inspect(ctx, DownloadingMarker, c.staleAfter)
	if err != nil {
		return Status{}, err
	}
	switch {
	case ready:
		status.State = StateReady
	case status.Lease.Present && status.Lease.Stale:
		status.State = StateStale
	case status.Lease.Present:
		status.State = StateDownloading
	default:
		status.State = StateAbsent
	}
	return status, nil
}

// MissingRequiredArtifacts returns, for each required artifact of the
// catalog that is absent from storage, its key mapped to the path where
// it was expected. An empty map means everything is present. A required
// directory that exists as a file counts as missing.
func MissingRequiredArtifacts(storage stagefs.Storage, required []catalog.Required) (map[string]string, error) {
	missing := make(map[string]string)
	for _, artifact := range required {
		info, err := storage.Stat(artifact.Path)
		switch {
		case err == nil && info.IsDir == artifact.Directory:
			continue
		case err == nil, errors.Is(err, fs.ErrNotExist):
			missing[artifact.Key] = filepath.Join(storage.Root(), filepath.FromSlash(artifact.Path))
		default:
			return nil, fmt.Errorf("checking required artifact %s: %w", artifact.Key, err)
		}
	}
	return missing, nil
}
