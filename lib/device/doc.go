// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device decides which compute device a worker runs on.
//
// [Resolver.Resolve] combines the requested mode (auto, cpu, or
// accelerator) with a live accelerator probe and either approves a
// device or fails with a typed error:
//
//	mode         present  capability  driver  result
//	cpu          -        -           -       CPU
//	accelerator  no       -           -       accelerator_unavailable
//	accelerator  yes      too low     -       device_unsupported
//	accelerator  yes      ok          too old driver_incompatible
//	accelerator  yes      ok          ok      accelerator
//	auto         any shortfall                CPU, with a warning
//	auto         yes      ok          ok      accelerator
//
// Verdicts are never cached: drivers get upgraded and containers get
// rescheduled onto different hardware between process restarts.
package device
