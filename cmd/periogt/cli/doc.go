// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the periogt
// binary: a tree of [Command] values with pflag-based flag parsing,
// typo suggestions for unknown commands and flags, and helpers for the
// two output modes every command supports (human text on stdout, or
// indented JSON with --json).
//
// Failures reach the operator through [ReportError], which renders any
// error as the structured {"error": {...}} document on stderr and maps
// its failure code to the process exit status.
package cli
