// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes and compares content digests for downloaded
// artifacts.
//
// A digest is written as "algorithm:hex", for example
// "sha256:9f86d0...". Four algorithms are supported: md5 (the digests
// published alongside the upstream checkpoints), sha256, blake3, and
// blake2b (256-bit). For compatibility with published md5 sums, a bare
// 32-character hex string parses as md5 and a bare 64-character hex
// string parses as sha256.
//
// [HashFile] streams a file through the hash so memory use is constant
// regardless of archive size.
package digest
