// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propindex

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/periogt/periogt/lib/catalog"
)

// Layout recognizes one way of arranging checkpoints on disk. Detect
// returns a map from property identifier to slash-separated path
// relative to the root, or ok=false when the layout does not apply.
type Layout interface {
	Name() string
	Detect(root fs.FS) (found map[string]string, ok bool, err error)
}

// DefaultLayouts returns the conventional layout followed by the
// recursive fallback.
func DefaultLayouts() []Layout {
	return []Layout{
		Conventional{Directory: catalog.FinetunedDir},
		RecursiveScan{},
	}
}

// Conventional is one subdirectory per property under Directory, each
// holding a checkpoint file, plus loose best_model_<id>.pth files
// directly under Directory.
type Conventional struct {
	Directory string
}

// Name returns "conventional".
func (Conventional) Name() string { return "conventional" }

// Detect walks Directory one level deep.
func (c Conventional) Detect(root fs.FS) (map[string]string, bool, error) {
	entries, err := fs.ReadDir(root, c.Directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	found := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			checkpoint, err := pickCheckpoint(root, path.Join(c.Directory, name))
			if err != nil {
				return nil, false, err
			}
			if checkpoint != "" {
				found[name] = checkpoint
			}
			continue
		}
		if !strings.HasSuffix(name, catalog.CheckpointExt) {
			continue
		}
		id := strings.TrimSuffix(name, catalog.CheckpointExt)
		id = strings.TrimPrefix(id, catalog.CheckpointStem+"_")
		if id == "" || id == catalog.CheckpointStem {
			continue
		}
		// A property directory wins over a loose file of the same id.
		if _, exists := found[id]; !exists {
			found[id] = path.Join(c.Directory, name)
		}
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	return found, true, nil
}

// pickCheckpoint returns the checkpoint inside a property directory:
// best_model.pth if present, otherwise the first .pth in name order.
func pickCheckpoint(root fs.FS, directory string) (string, error) {
	entries, err := fs.ReadDir(root, directory)
	if err != nil {
		return "", err
	}
	preferred := catalog.CheckpointStem + catalog.CheckpointExt
	first := ""
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), catalog.CheckpointExt) {
			continue
		}
		if entry.Name() == preferred {
			return path.Join(directory, preferred), nil
		}
		if first == "" {
			first = path.Join(directory, entry.Name())
		}
	}
	return first, nil
}

// RecursiveScan finds best_model*.pth anywhere under the root. The id
// comes from the file name suffix (best_model_<id>.pth) or, for a bare
// best_model.pth, from the parent directory name. When several files
// claim the same id the lexically smallest path wins.
type RecursiveScan struct{}

// Name returns "recursive".
func (RecursiveScan) Name() string { return "recursive" }

// Detect walks the whole tree.
func (RecursiveScan) Detect(root fs.FS) (map[string]string, bool, error) {
	var matches []string
	err := fs.WalkDir(root, ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		base := entry.Name()
		if strings.HasPrefix(base, catalog.CheckpointStem) && strings.HasSuffix(base, catalog.CheckpointExt) {
			matches = append(matches, name)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	sort.Strings(matches)

	found := make(map[string]string)
	for _, match := range matches {
		id := idFromCheckpoint(match)
		if id == "" {
			continue
		}
		if _, exists := found[id]; !exists {
			found[id] = match
		}
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	return found, true, nil
}

func idFromCheckpoint(name string) string {
	stem := strings.TrimSuffix(path.Base(name), catalog.CheckpointExt)
	if suffix, ok := strings.CutPrefix(stem, catalog.CheckpointStem+"_"); ok && suffix != "" {
		return suffix
	}
	if stem != catalog.CheckpointStem {
		return ""
	}
	parent := path.Base(path.Dir(name))
	if parent == "." || parent == "/" {
		return ""
	}
	return parent
}
