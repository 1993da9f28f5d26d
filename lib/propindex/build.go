// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propindex

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/failure"
)

// Builder turns a staging tree into an Index.
type Builder struct {
	// Catalog supplies display metadata. Required.
	Catalog *catalog.Catalog

	// Layouts are tried in order. Nil means DefaultLayouts.
	Layouts []Layout
}

// Build scans tree and returns the index. root is the staging root
// path that checkpoint paths in the index are joined onto; tree is a
// view of that same root. When no layout applies Build fails with
// [failure.CodeCheckpointMissing].
func (b Builder) Build(root string, tree fs.FS) (Index, string, error) {
	layouts := b.Layouts
	if layouts == nil {
		layouts = DefaultLayouts()
	}
	for _, layout := range layouts {
		found, ok, err := layout.Detect(tree)
		if err != nil {
			return nil, "", fmt.Errorf("scanning %s with %s layout: %w", root, layout.Name(), err)
		}
		if !ok {
			continue
		}
		index := make(Index, len(found))
		for id, relative := range found {
			metadata := b.Catalog.Metadata(id)
			index[id] = Entry{
				Checkpoint: filepath.Join(root, filepath.FromSlash(relative)),
				Label:      metadata.Label,
				Units:      metadata.Units,
			}
		}
		return index, layout.Name(), nil
	}
	return nil, "", failure.CheckpointMissing("no property checkpoints found under %s", root).
		With("staging_root", root)
}
