// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap brings a shared staging root to the READY state:
// every catalog archive downloaded, verified, extracted, and indexed.
//
// The root moves through three states:
//
//	ABSENT ──claim──▶ DOWNLOADING ──success──▶ READY
//	   ▲                  │
//	   └──stale lease─────┘
//
// READY is marked by a ready file. DOWNLOADING is marked by the
// download lease (see lib/lease), whose modification time is the lease
// timestamp. Any number of workers, on any number of hosts, may call
// [Coordinator.EnsureReady] concurrently against the same root:
//
//   - READY with an index: the index is read and returned.
//   - READY without an index: the index is rebuilt from the extracted
//     tree and persisted, with no download.
//   - DOWNLOADING with a fresh lease: the call fails immediately with
//     bootstrap_in_progress and writes nothing. Retrying is the
//     caller's job; [WaitReady] is a ready-made retry loop.
//   - DOWNLOADING with a stale lease, or ABSENT: the caller takes the
//     lease and runs the critical section (fetch, extract, index,
//     ready marker, release).
//
// A failure inside the critical section releases the lease before the
// error is returned so another worker can retry without waiting out
// the staleness threshold. Every persisted file is replaced atomically,
// so two workers that both end up in the critical section waste work
// but cannot corrupt the root.
//
// The coordinator only talks to storage through [stagefs.Storage]; the
// same logic runs against a local disk, a network volume, or the
// in-memory fake.
package bootstrap
