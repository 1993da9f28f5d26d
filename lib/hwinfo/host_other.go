// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hwinfo

import "os"

// ProbeHost collects what it can outside Linux: the hostname.
func ProbeHost() Host {
	hostname, _ := os.Hostname()
	return Host{Hostname: hostname}
}

// KernelRelease is unknown outside Linux.
func KernelRelease() string { return "" }
