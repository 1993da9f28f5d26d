// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command periogt stages property-prediction checkpoints, resolves the
// execution device, and diagnoses worker nodes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/cmd/periogt/commands"
)

func main() {
	// Failures are written to stderr as {"error": {...}}; commands that
	// print their own output (like doctor) return an ExitError, which
	// only sets the status.
	os.Exit(cli.ReportError(os.Stderr, run()))
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
