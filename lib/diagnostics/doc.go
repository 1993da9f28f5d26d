// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package diagnostics produces the read-only environment report behind
// `periogt doctor`.
//
// A [Report] carries info facts, warnings, and fatals. Its verdict and
// exit code are pure functions of the last two: any fatal is FAIL (2),
// otherwise any warning is WARN (1), otherwise PASS (0).
//
// [Reporter.Run] never writes under the staging root and never starts a
// bootstrap; it only inspects.
package diagnostics
