// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stagefs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var markerTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// exerciseStorage runs the same contract checks against any Storage.
func exerciseStorage(t *testing.T, storage Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := storage.Stat(".ready"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Stat on empty root: err = %v, want ErrNotExist", err)
	}
	if err := storage.Refresh(ctx); err != nil {
		t.Fatalf("Refresh before EnsureRoot: %v", err)
	}
	if err := storage.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}

	if err := storage.WriteFileAtomic("index.json", []byte(`{"a":1}`), markerTime); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	info, err := storage.Stat("index.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.ModTime.Equal(markerTime) {
		t.Errorf("ModTime = %v, want %v", info.ModTime, markerTime)
	}
	if info.Size != 7 || info.IsDir {
		t.Errorf("Info = %+v", info)
	}

	if err := storage.WriteFileAtomic("index.json", []byte(`{"b":2}`), markerTime.Add(time.Minute)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := storage.ReadFile("index.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"b":2}` {
		t.Errorf("ReadFile = %q", data)
	}

	if err := storage.Remove("index.json"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := storage.Remove("index.json"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := storage.ReadFile("index.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile after Remove: err = %v", err)
	}
	if err := storage.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestDiskContract(t *testing.T) {
	disk, err := NewDisk(filepath.Join(t.TempDir(), "checkpoints"))
	if err != nil {
		t.Fatal(err)
	}
	exerciseStorage(t, disk)
}

func TestMemoryContract(t *testing.T) {
	exerciseStorage(t, NewMemory("/vol/checkpoints"))
}

func TestDiskAtomicWriteLeavesNoTemporaryFiles(t *testing.T) {
	root := t.TempDir()
	disk, err := NewDisk(root)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := disk.WriteFileAtomic("index.json", []byte("{}"), time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("root has %d entries, want 1", len(entries))
	}
}

func TestDiskStatDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "finetuned_ckpt", "eps"), 0755); err != nil {
		t.Fatal(err)
	}
	disk, _ := NewDisk(root)
	info, err := disk.Stat("finetuned_ckpt/eps")
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir {
		t.Error("IsDir = false for a directory")
	}
}

func TestMemoryRecordsOperations(t *testing.T) {
	memory := NewMemory("/vol")
	memory.Put(".downloading", nil, markerTime)
	if len(memory.Operations()) != 0 {
		t.Fatal("Put recorded an operation")
	}

	memory.EnsureRoot()
	memory.WriteFileAtomic(".ready", nil, markerTime)
	memory.Remove(".downloading")

	want := []Operation{{"write", ".ready"}, {"remove", ".downloading"}}
	got := memory.Operations()
	if len(got) != len(want) {
		t.Fatalf("Operations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Operations[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	memory.ResetOperations()
	if len(memory.Operations()) != 0 {
		t.Error("ResetOperations did not clear the log")
	}
}

func TestMemoryImpliedDirectories(t *testing.T) {
	memory := NewMemory("/vol")
	memory.Put("finetuned_ckpt/eps/best_model.pth", []byte("x"), markerTime)
	info, err := memory.Stat("finetuned_ckpt")
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir {
		t.Error("IsDir = false for an implied directory")
	}
	if _, err := memory.Stat("finetuned"); !errors.Is(err, fs.ErrNotExist) {
		t.Error("prefix without separator matched a directory")
	}
}

func TestMemoryFailWrite(t *testing.T) {
	memory := NewMemory("/vol")
	injected := errors.New("disk quota exceeded")
	memory.FailWrite = func(name string) error {
		if name == "index.json" {
			return injected
		}
		return nil
	}
	if err := memory.WriteFileAtomic("index.json", nil, markerTime); !errors.Is(err, injected) {
		t.Errorf("err = %v, want injected error", err)
	}
	if err := memory.WriteFileAtomic(".ready", nil, markerTime); err != nil {
		t.Errorf("unrelated write failed: %v", err)
	}
}

func TestFSViews(t *testing.T) {
	disk, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Disk writes do not create parent directories; extraction does.
	if err := os.MkdirAll(filepath.Join(disk.Root(), "finetuned_ckpt", "eps"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, storage := range []Storage{disk, NewMemory("/vol")} {
		if err := storage.WriteFileAtomic("finetuned_ckpt/eps/best_model.pth", []byte("w"), markerTime); err != nil {
			t.Fatalf("%T: %v", storage, err)
		}
		matches, err := fs.Glob(storage.FS(), "finetuned_ckpt/*/best_model.pth")
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 1 || matches[0] != "finetuned_ckpt/eps/best_model.pth" {
			t.Errorf("%T: Glob = %v", storage, matches)
		}
	}
}
