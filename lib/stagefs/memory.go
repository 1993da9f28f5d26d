// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stagefs

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
	"testing/fstest"
	"time"
)

// Operation is one mutating call recorded by Memory.
type Operation struct {
	Kind string // "mkdir", "write", or "remove"
	Name string
}

// Memory is an in-memory Storage for tests. It is safe for concurrent
// use, so several simulated workers can share one instance.
type Memory struct {
	mu         sync.Mutex
	root       string
	rootExists bool
	files      map[string]memoryFile
	operations []Operation
	refreshes  int
	commits    int

	// FailWrite, when set, is consulted before every write. A non-nil
	// return aborts the write with that error.
	FailWrite func(name string) error
}

type memoryFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty Memory whose Root reports root.
func NewMemory(root string) *Memory {
	return &Memory{root: root, files: make(map[string]memoryFile)}
}

// Root returns the root name given to NewMemory.
func (m *Memory) Root() string { return m.root }

// Refresh counts the call.
func (m *Memory) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return ctx.Err()
}

// Commit counts the call.
func (m *Memory) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return ctx.Err()
}

// EnsureRoot marks the root as existing.
func (m *Memory) EnsureRoot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rootExists {
		m.rootExists = true
		m.operations = append(m.operations, Operation{Kind: "mkdir", Name: "."})
	}
	return nil
}

// Stat returns information about a file. Directories are implied by
// file names beneath them.
func (m *Memory) Stat(name string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	if file, ok := m.files[name]; ok {
		return Info{Name: name, Size: int64(len(file.data)), ModTime: file.modTime}, nil
	}
	prefix := name + "/"
	for existing := range m.files {
		if len(existing) > len(prefix) && existing[:len(prefix)] == prefix {
			return Info{Name: name, IsDir: true}, nil
		}
	}
	return Info{}, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile returns a copy of the file content.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), file.data...), nil
}

// WriteFileAtomic stores a copy of data.
func (m *Memory) WriteFileAtomic(name string, data []byte, modTime time.Time) error {
	if m.FailWrite != nil {
		if err := m.FailWrite(name); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	m.files[name] = memoryFile{data: append([]byte(nil), data...), modTime: modTime}
	m.operations = append(m.operations, Operation{Kind: "write", Name: name})
	return nil
}

// Remove deletes a file; removing a missing file is recorded but not
// an error.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	delete(m.files, name)
	m.operations = append(m.operations, Operation{Kind: "remove", Name: name})
	return nil
}

// FS returns a snapshot of the current files. Later writes are not
// reflected in it.
func (m *Memory) FS() fs.FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(fstest.MapFS, len(m.files))
	for name, file := range m.files {
		snapshot[name] = &fstest.MapFile{
			Data:    append([]byte(nil), file.data...),
			Mode:    0644,
			ModTime: file.modTime,
		}
	}
	return snapshot
}

// Put seeds a file without recording an operation. Tests use it to set
// up a starting state.
func (m *Memory) Put(name string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootExists = true
	m.files[path.Clean(name)] = memoryFile{data: append([]byte(nil), data...), modTime: modTime}
}

// Operations returns the mutating calls recorded so far.
func (m *Memory) Operations() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Operation(nil), m.operations...)
}

// ResetOperations clears the operation log.
func (m *Memory) ResetOperations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = nil
}

// Names returns the stored file names in sorted order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refreshes returns how many times Refresh was called.
func (m *Memory) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// Commits returns how many times Commit was called.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
