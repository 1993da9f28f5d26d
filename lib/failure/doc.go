// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package failure defines the stable error taxonomy shared by the
// staging, device, and diagnostics packages.
//
// Every failure that can reach an operator carries a [Code] from a
// fixed set. Codes are constructed at the point of failure with the
// per-code constructors ([Validation], [ChecksumMismatch], ...) and
// travel through ordinary error wrapping; callers recover them with
// errors.As or [CodeOf].
//
// Errors that cross an uncontrolled boundary (network clients, the
// filesystem, archive readers) are not typed at their source. The
// entry point passes them through [Classify], which is the single
// place where an untyped error becomes a taxonomy value. Classify never
// inspects message text: untyped errors become [CodeInternal] with the
// original message preserved.
//
// Each code maps to a [Severity], which fixes the process exit code and
// the HTTP status an outer service layer would use.
package failure
