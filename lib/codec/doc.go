// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every binary
// record the staging volume carries. Today that is the lease marker
// body: a small holder record written by the worker that owns the
// download lease.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same holder always produces the same bytes. Decoding ignores unknown
// fields, which lets an older worker read a marker written by a newer
// one.
package codec
