// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Entry is one property in the index.
type Entry struct {
	Checkpoint string `json:"checkpoint"`
	Label      string `json:"label"`
	Units      string `json:"units"`
}

// Index maps property identifiers to entries.
type Index map[string]Entry

// IDs returns the property identifiers in sorted order.
func (index Index) IDs() []string {
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode renders index as indented JSON with sorted keys and a
// trailing newline.
func Encode(index Index) ([]byte, error) {
	if index == nil {
		index = Index{}
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(index); err != nil {
		return nil, fmt.Errorf("encoding property index: %w", err)
	}
	return buffer.Bytes(), nil
}

// Decode parses an index document.
func Decode(data []byte) (Index, error) {
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding property index: %w", err)
	}
	if index == nil {
		return nil, fmt.Errorf("decoding property index: document is null")
	}
	return index, nil
}
