// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/periogt/periogt/lib/digest"
)

// Descriptor identifies one remote archive. Identity is Name, which is
// also the file name the archive is downloaded to.
type Descriptor struct {
	Name   string
	URL    string
	Digest digest.Digest
}

type descriptorJSON struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Digest string `json:"digest"`
}

// MarshalJSON writes the digest in its "algorithm:hex" form.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorJSON{Name: d.Name, URL: d.URL, Digest: d.Digest.String()})
}

// UnmarshalJSON parses and validates the digest.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw descriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := digest.Parse(raw.Digest)
	if err != nil {
		return fmt.Errorf("artifact %q: %w", raw.Name, err)
	}
	*d = Descriptor{Name: raw.Name, URL: raw.URL, Digest: parsed}
	return nil
}

// PropertyMetadata is the display information for one property.
type PropertyMetadata struct {
	Label string `json:"label"`
	Units string `json:"units"`
}

// Required is one entry of the required-artifact set: a stable key
// used in diagnostics and the path relative to the staging root.
type Required struct {
	Key       string
	Path      string
	Directory bool
}

// Catalog is the complete registry. The zero value is empty; use
// Default or LoadFile.
type Catalog struct {
	Artifacts  []Descriptor                `json:"artifacts"`
	Properties map[string]PropertyMetadata `json:"properties,omitempty"`
	Required   []Required                  `json:"-"`
}

// Metadata returns the display metadata for a property. Unknown
// properties get their identifier as label and an empty unit, so a
// checkpoint with an unrecognized name is still usable.
func (c *Catalog) Metadata(propertyID string) PropertyMetadata {
	if metadata, ok := c.Properties[propertyID]; ok {
		return metadata
	}
	return PropertyMetadata{Label: propertyID, Units: ""}
}

// Artifact returns the descriptor with the given name.
func (c *Catalog) Artifact(name string) (Descriptor, bool) {
	for _, descriptor := range c.Artifacts {
		if descriptor.Name == name {
			return descriptor, true
		}
	}
	return Descriptor{}, false
}

// PropertyIDs returns the known property identifiers in sorted order.
func (c *Catalog) PropertyIDs() []string {
	ids := make([]string, 0, len(c.Properties))
	for id := range c.Properties {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every artifact has a unique name, a source URL,
// and a digest.
func (c *Catalog) Validate() error {
	var errs []error
	if len(c.Artifacts) == 0 {
		errs = append(errs, errors.New("catalog lists no artifacts"))
	}
	seen := make(map[string]bool)
	for index, descriptor := range c.Artifacts {
		if descriptor.Name == "" {
			errs = append(errs, fmt.Errorf("artifacts[%d]: name is required", index))
			continue
		}
		if seen[descriptor.Name] {
			errs = append(errs, fmt.Errorf("artifacts[%d]: duplicate name %q", index, descriptor.Name))
		}
		seen[descriptor.Name] = true
		if descriptor.URL == "" {
			errs = append(errs, fmt.Errorf("artifact %q: url is required", descriptor.Name))
		}
		if descriptor.Digest.IsZero() {
			errs = append(errs, fmt.Errorf("artifact %q: digest is required", descriptor.Name))
		}
	}
	return errors.Join(errs...)
}

// LoadFile reads a JSONC catalog override. The artifact list replaces
// the default one; properties are merged over the default table.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSONC catalog document.
func Parse(data []byte) (*Catalog, error) {
	var override Catalog
	if err := json.Unmarshal(jsonc.ToJSON(data), &override); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	result := Default()
	result.Artifacts = override.Artifacts
	for id, metadata := range override.Properties {
		result.Properties[id] = metadata
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return result, nil
}
