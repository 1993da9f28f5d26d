// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/periogt/periogt/lib/clock"
	"github.com/periogt/periogt/lib/failure"
)

// WaitOptions tunes WaitReady.
type WaitOptions struct {
	// InitialBackoff defaults to 2 s and doubles after each
	// bootstrap_in_progress failure up to MaxBackoff (default 30 s).
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// WaitReady calls EnsureReady until it succeeds, fails with anything
// other than bootstrap_in_progress, or ctx ends. The coordinator never
// waits on its own; this loop is for callers such as the CLI that want
// to block until another worker's bootstrap finishes or goes stale.
func WaitReady(ctx context.Context, coordinator *Coordinator, skipDownload bool, options WaitOptions) (*Result, error) {
	backoff := options.InitialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := options.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	for attempt := 1; ; attempt++ {
		result, err := coordinator.EnsureReady(ctx, skipDownload)
		if err == nil {
			return result, nil
		}
		if !failure.Is(err, failure.CodeBootstrapInProgress) {
			return nil, err
		}

		delay := backoff
		if retryAfter := retryAfterOf(err); retryAfter > 0 && retryAfter < delay {
			delay = retryAfter
		}
		logger.Info("bootstrap in progress elsewhere, waiting",
			"attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clk.After(delay):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// retryAfterOf reads the retry hint a bootstrap_in_progress error
// carries, or 0 when it has none. Waking at the hint lets the caller
// take over a stale lease as soon as it qualifies.
func retryAfterOf(err error) time.Duration {
	typed := failure.Classify(err)
	seconds, ok := typed.Details["retry_after_seconds"].(float64)
	if !ok {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
