// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the terminal styling shared by periogt's
// human-readable output: the color palette and the verdict badges
// doctor prints. Colors degrade to plain text when output is not a
// terminal, so the same rendering code serves pipes and log files.
package tui
