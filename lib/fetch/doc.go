// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch downloads artifact archives and verifies their content
// digests.
//
// [Verifier.FetchVerified] is the only entry point. A local copy whose
// digest already matches is returned without touching the network.
// Otherwise the archive is streamed into a temporary file beside the
// destination while being hashed, and renamed into place only when the
// digest over the complete bytes matches. A mismatched download is
// deleted and reported as a checksum_mismatch failure carrying both
// digests.
//
// Sources are chosen by URL scheme: http and https go through
// [HTTPSource], s3 through [ObjectStoreSource] (MinIO client), and
// file through [FileSource] for local mirrors.
package fetch
