// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo probes the host and its accelerators for the device
// gate and the doctor report.
//
// # Host facts
//
// [ProbeHost] reads hostname, kernel release, CPU model and topology,
// and total memory from /proc, /sys, and uname(2)/sysinfo(2) on
// Linux. It never fails: missing files produce zero values.
//
// # Accelerators
//
// Vendor subpackages implement [AcceleratorProber]. hwinfo/nvidia
// enumerates NVIDIA GPUs from sysfs and /proc/driver/nvidia and asks
// nvidia-smi for compute capability and driver version, which the
// kernel does not expose anywhere readable.
//
// # DRM helpers
//
// Shared sysfs/DRM helpers (drm.go) used by vendor subpackages: card
// device filtering, PCI uevent parsing, driver identification, and
// sysfs string/integer reads.
package hwinfo
