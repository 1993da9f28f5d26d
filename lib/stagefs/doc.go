// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stagefs abstracts the shared storage that holds a staging
// root: the marker files, the persisted index, and the extracted
// artifacts.
//
// The [Storage] interface covers what the lease and the bootstrap
// coordinator need: stat, read, atomic write with an explicit
// modification time, remove, and the two synchronization points of a
// shared volume ([Storage.Refresh] to observe other workers' writes and
// [Storage.Commit] to make this worker's writes durable and visible).
//
// [Disk] is the production implementation over a local or network
// filesystem. Atomic writes go through a temporary file in the same
// directory, fsync, rename, and a parent-directory fsync, so readers
// never observe a partially written file. [Memory] is an in-memory
// implementation for tests; it records every mutating operation so a
// test can assert that a code path performed no writes.
package stagefs
