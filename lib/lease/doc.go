// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease implements a cooperative, time-bounded claim on a
// shared staging root. A lease is a marker file whose modification time
// is the lease timestamp: a worker that finds a marker younger than the
// TTL backs off, and a worker that finds an older one treats the
// previous holder as dead and takes over.
//
// This is best-effort mutual exclusion. Two workers that race past an
// absent marker may both acquire; callers must keep the protected work
// idempotent. After writing its marker, [Manager.Acquire] reads it back
// and reports [ErrBusy] if another holder's write landed last, which
// narrows the window without closing it.
//
// The marker body is a CBOR [Holder] record (holder id, hostname, pid,
// acquisition time) for operators. Staleness never depends on the body:
// a marker with an empty or unreadable body is judged purely by its
// modification time.
//
// Leases work against any [stagefs.Storage], so the same logic runs on
// a local disk, a network volume, or the in-memory fake used in tests.
package lease
