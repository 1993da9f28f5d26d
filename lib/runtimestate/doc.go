// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtimestate holds what a serving process needs after
// bootstrap: the property index, label statistics, the resolved device,
// and a lazily filled per-property checkpoint cache.
//
// A [State] is an ordinary value owned by the process entry point and
// passed to whatever serves requests. There is no package-level state.
// [State.Checkpoint] loads each property at most once per process:
// concurrent callers for the same id share one load, and failed loads
// are not cached so a later call can retry.
package runtimestate
