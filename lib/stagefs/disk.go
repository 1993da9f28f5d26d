// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stagefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Disk is a Storage rooted at a directory on a local or network
// filesystem.
type Disk struct {
	root string
}

// NewDisk returns a Disk rooted at root. The path is made absolute; the
// directory itself is created lazily by EnsureRoot.
func NewDisk(root string) (*Disk, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving staging root %s: %w", root, err)
	}
	return &Disk{root: absolute}, nil
}

// Root returns the absolute path of the staging root.
func (d *Disk) Root() string { return d.root }

func (d *Disk) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

// FS returns os.DirFS over the root.
func (d *Disk) FS() fs.FS { return os.DirFS(d.root) }

// Refresh re-reads the root directory. On NFS-style volumes opening the
// directory revalidates the attribute cache, which is what makes marker
// files written by other hosts visible.
func (d *Disk) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	directory, err := os.Open(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("refreshing staging root: %w", err)
	}
	defer directory.Close()
	if _, err := directory.Readdirnames(-1); err != nil {
		return fmt.Errorf("refreshing staging root: %w", err)
	}
	return nil
}

// Commit flushes the filesystem that holds the staging root.
func (d *Disk) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := syncFilesystem(d.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("committing staging root: %w", err)
	}
	return nil
}

// EnsureRoot creates the staging root directory.
func (d *Disk) EnsureRoot() error {
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return fmt.Errorf("creating staging root: %w", err)
	}
	return nil
}

// Stat returns information about the named entry.
func (d *Disk) Stat(name string) (Info, error) {
	info, err := os.Stat(d.path(name))
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

// ReadFile returns the content of the named file.
func (d *Disk) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(d.path(name))
}

// WriteFileAtomic writes data to a temporary file in the same
// directory, fsyncs it, sets its modification time, renames it into
// place, and fsyncs the parent directory.
func (d *Disk) WriteFileAtomic(name string, data []byte, modTime time.Time) error {
	return WriteFileAtomic(d.path(name), data, modTime)
}

// Remove deletes the named file, ignoring a missing file.
func (d *Disk) Remove(name string) error {
	if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// WriteFileAtomic atomically replaces the file at path. It is exported
// for components that write outside a Storage (the index builder's
// callers, tests).
func WriteFileAtomic(path string, data []byte, modTime time.Time) error {
	directory := filepath.Dir(path)
	temporary, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := temporary.Name()

	// Write, sync, close, in that order. Any failure removes the
	// temporary file and reports the first error.
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file for %s: %w", path, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file for %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}
	if err := os.Chmod(temporaryPath, 0644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("setting mode on temporary file for %s: %w", path, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(temporaryPath, modTime, modTime); err != nil {
			os.Remove(temporaryPath)
			return fmt.Errorf("setting modification time for %s: %w", path, err)
		}
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	// The rename is only durable once the directory entry is flushed.
	parent, err := os.Open(directory)
	if err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
