// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package propindex builds the property index: the mapping from a
// property identifier to its finetuned checkpoint file plus display
// metadata.
//
// Checkpoints are found by an ordered list of [Layout] strategies.
// The first layout that recognizes the tree wins; later ones are never
// consulted. [DefaultLayouts] tries the conventional layout
// (finetuned_ckpt/<id>/*.pth, or finetuned_ckpt/best_model_<id>.pth)
// and then a recursive scan for best_model*.pth anywhere under the
// root.
//
// Identifiers the catalog does not know are kept, labelled with the
// identifier itself and an empty unit string.
//
// [Encode] is deterministic: the same tree always produces the same
// bytes, whatever order the filesystem lists entries in.
package propindex
