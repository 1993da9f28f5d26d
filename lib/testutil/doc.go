// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for periogt packages.
//
// [WriteTree] lays out a directory tree from a map of slash-separated
// relative paths to file contents. Staging-root tests use it to build
// "already extracted" checkpoint layouts without going through an
// archive.
//
// [ZipArchive] and [TarArchive] build in-memory archives from the same
// kind of map, for tests that drive extraction or a full bootstrap
// against a local HTTP server.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place
// in the test suite where real wall-clock timeouts are used.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
