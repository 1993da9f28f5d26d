// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runtimestate

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/digest"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/propindex"
)

// Checkpoint is a verified, readable checkpoint file. The numerical
// runtime maps it onto Device.
type Checkpoint struct {
	PropertyID string        `json:"property"`
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Digest     digest.Digest `json:"digest"`
	Device     string        `json:"device"`
}

// CheckpointLoader reads each checkpoint in full and records its
// BLAKE3 digest, which surfaces truncated or unreadable files before a
// request depends on them.
type CheckpointLoader struct{}

// Load implements Loader.
func (CheckpointLoader) Load(ctx context.Context, propertyID string, entry propindex.Entry, target device.Device) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(entry.Checkpoint)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.CheckpointMissing("checkpoint for %s is missing", propertyID).
			With("property", propertyID).
			With("path", entry.Checkpoint)
	}
	if err != nil {
		return nil, failure.ModelLoadFailed("checking checkpoint for %s", propertyID).
			Wrap(err).
			With("path", entry.Checkpoint)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, failure.ModelLoadFailed("checkpoint for %s is not a non-empty file", propertyID).
			With("path", entry.Checkpoint)
	}

	sum, err := digest.HashFile(digest.BLAKE3, entry.Checkpoint)
	if err != nil {
		return nil, failure.ModelLoadFailed("reading checkpoint for %s", propertyID).
			Wrap(err).
			With("path", entry.Checkpoint)
	}
	return &Checkpoint{
		PropertyID: propertyID,
		Path:       entry.Checkpoint,
		Size:       info.Size(),
		Digest:     sum,
		Device:     target.String(),
	}, nil
}
