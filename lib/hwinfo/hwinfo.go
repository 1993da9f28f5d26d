// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import "context"

// GPU is the static description of one accelerator.
type GPU struct {
	Vendor      string `json:"vendor,omitempty"`
	Driver      string `json:"driver,omitempty"`
	PCIDeviceID string `json:"pci_device_id,omitempty"`
	PCISlot     string `json:"pci_slot,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
	UniqueID    string `json:"unique_id,omitempty"`

	// ComputeCapability is the vendor's major.minor capability
	// string, e.g. "8.9". Empty when it could not be determined.
	ComputeCapability string `json:"compute_capability,omitempty"`
}

// AcceleratorReport is what one vendor prober found.
type AcceleratorReport struct {
	GPUs []GPU

	// DriverLoaded reports that the vendor's kernel driver is present,
	// even if no usable device was found.
	DriverLoaded bool

	// DriverVersion is the loaded driver's version, e.g. "560.35.03".
	DriverVersion string

	// ToolError records why the vendor's userspace tool could not be
	// queried, for diagnostics. Empty when the query succeeded or was
	// not needed.
	ToolError string
}

// Usable returns the GPUs that have a compute capability, i.e. that
// the userspace stack can actually drive.
func (r AcceleratorReport) Usable() []GPU {
	var usable []GPU
	for _, gpu := range r.GPUs {
		if gpu.ComputeCapability != "" {
			usable = append(usable, gpu)
		}
	}
	return usable
}

// AcceleratorProber enumerates one vendor's accelerators. Probe never
// fails; missing hardware or tooling is reflected in the report.
type AcceleratorProber interface {
	Probe(ctx context.Context) AcceleratorReport
}

// Host is static information about the machine.
type Host struct {
	Hostname       string `json:"hostname,omitempty"`
	KernelRelease  string `json:"kernel_release,omitempty"`
	CPUModel       string `json:"cpu_model,omitempty"`
	Sockets        int    `json:"sockets,omitempty"`
	CoresPerSocket int    `json:"cores_per_socket,omitempty"`
	ThreadsPerCore int    `json:"threads_per_core,omitempty"`
	MemoryTotalMB  int    `json:"memory_total_mb,omitempty"`
}
