// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stagefs

import (
	"context"
	"io/fs"
	"time"
)

// Info describes one entry under the staging root.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Storage is a staging root on shared storage. Names are slash
// separated and relative to the root. Errors for missing entries wrap
// fs.ErrNotExist.
type Storage interface {
	// Root returns the location of the staging root. For Disk this is
	// an absolute filesystem path that extraction and index building
	// operate on directly.
	Root() string

	// Refresh re-synchronizes this process's view of the storage so
	// that writes committed by other workers are visible.
	Refresh(ctx context.Context) error

	// Commit makes every write performed so far durable and visible to
	// other workers.
	Commit(ctx context.Context) error

	// EnsureRoot creates the staging root if it does not exist.
	EnsureRoot() error

	// Stat returns information about the named entry.
	Stat(name string) (Info, error)

	// ReadFile returns the content of the named file.
	ReadFile(name string) ([]byte, error)

	// WriteFileAtomic replaces the named file with data and sets its
	// modification time. Concurrent readers observe either the old
	// content or the new content, never a mix.
	WriteFileAtomic(name string, data []byte, modTime time.Time) error

	// Remove deletes the named file. Removing an entry that does not
	// exist is not an error.
	Remove(name string) error

	// FS returns a read-only view of the root for tree walks.
	FS() fs.FS
}
