// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract unpacks verified artifact archives into the staging
// root and discards the archive afterwards.
//
// The archive format is chosen by file name suffix: .zip, .tar.zst,
// .tar.gz (or .tgz), .tar.lz4 and plain .tar. Extraction overwrites
// files that already exist, so re-running after a partial failure is
// safe. A failure leaves the archive in place for the retry and is
// reported as model_load_failed; files already written are not rolled
// back.
package extract
