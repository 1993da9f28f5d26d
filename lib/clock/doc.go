// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the staging
// code paths whose behavior depends on wall-clock time: lease
// staleness, marker timestamps, and the caller-side wait loop.
//
// Production code receives Real(). Tests receive Fake(), a clock that
// only moves when Advance is called, so a lease can be aged past its
// staleness threshold without sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	coordinator := bootstrap.New(bootstrap.Options{Clock: c, ...})
//	c.Advance(6 * time.Minute)
//
// Goroutines blocked in After register a pending waiter. WaitForTimers
// blocks until a given number of waiters exist, which removes the race
// between a goroutine arming a timer and the test advancing time.
package clock
