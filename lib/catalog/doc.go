// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog is the static registry of what a staging root must
// contain: the remote archives to fetch (name, source URL, expected
// digest), the metadata that turns a property identifier into a
// display label and unit, and the set of files and directories that
// must exist before inference can start.
//
// [Default] returns the built-in catalog for the published PerioGT
// checkpoints. [LoadFile] reads a JSONC override (comments and trailing
// commas allowed) for mirrors and air-gapped installs; an override
// replaces the artifact list and may add or relabel properties.
package catalog
