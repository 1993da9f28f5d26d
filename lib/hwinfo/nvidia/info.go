// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nvidia enumerates NVIDIA GPUs for the device gate. Identity
// comes from sysfs (/sys/class/drm/card*) and, when the proprietary
// driver is loaded, from /proc/driver/nvidia/. Compute capability is
// only exposed through the userspace stack, so the prober asks
// nvidia-smi for it and merges the answer by PCI slot.
//
// nouveau devices are reported but never carry a compute capability:
// the CUDA runtime cannot drive them.
package nvidia

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/periogt/periogt/lib/hwinfo"
)

// smiQuery is the nvidia-smi field list, in column order.
var smiQuery = []string{
	"--query-gpu=pci.bus_id,name,compute_cap,driver_version,uuid",
	"--format=csv,noheader",
}

// SMITimeout bounds one nvidia-smi query. A wedged driver can leave
// nvidia-smi blocked in the kernel indefinitely.
const SMITimeout = 5 * time.Second

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. A failing command's stderr
// is folded into the returned error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stderr = &stderr
	// Output also waits for the pipes, which a killed process's
	// children may still hold open.
	command.WaitDelay = time.Second
	output, err := command.Output()
	if err != nil {
		if message := strings.TrimSpace(stderr.String()); message != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, message)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

// Prober implements hwinfo.AcceleratorProber for NVIDIA GPUs.
type Prober struct {
	// sysRoot is the root of the sysfs filesystem. Defaults to "/sys"
	// in production; overridden in tests with synthetic filesystems.
	sysRoot string

	// procRoot is the root of the proc filesystem. Defaults to "/proc"
	// in production; overridden in tests.
	procRoot string

	// run executes nvidia-smi. Nil disables the userspace query.
	run CommandRunner

	// timeout bounds the nvidia-smi query.
	timeout time.Duration
}

// NewProber creates a Prober that reads from the real /sys and /proc
// filesystems and runs nvidia-smi from PATH.
func NewProber() *Prober {
	return &Prober{sysRoot: "/sys", procRoot: "/proc", run: ExecRunner, timeout: SMITimeout}
}

// newProberFrom creates a Prober with custom filesystem roots and
// command runner for testing.
func newProberFrom(sysRoot, procRoot string, run CommandRunner) *Prober {
	return &Prober{sysRoot: sysRoot, procRoot: procRoot, run: run, timeout: SMITimeout}
}

// Probe enumerates NVIDIA GPUs and the loaded driver version.
func (p *Prober) Probe(ctx context.Context) hwinfo.AcceleratorReport {
	var report hwinfo.AcceleratorReport

	gpus := p.Enumerate()
	for _, gpu := range gpus {
		if gpu.Driver == "nvidia" {
			report.DriverLoaded = true
		}
	}
	if version := p.readDriverVersion(); version != "" {
		report.DriverLoaded = true
		report.DriverVersion = version
	}

	if p.run != nil {
		rows, err := p.querySMI(ctx)
		if err != nil {
			report.ToolError = err.Error()
		} else {
			gpus = mergeSMI(gpus, rows)
			for _, row := range rows {
				if row.driverVersion != "" {
					report.DriverLoaded = true
					if report.DriverVersion == "" {
						report.DriverVersion = row.driverVersion
					}
					break
				}
			}
		}
	}

	report.GPUs = gpus
	return report
}

// Enumerate returns static GPU information for all NVIDIA GPUs managed
// by the nvidia or nouveau drivers on this system. Returns nil if no
// NVIDIA devices are found.
func (p *Prober) Enumerate() []hwinfo.GPU {
	drmBase := filepath.Join(p.sysRoot, "class/drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return nil
	}

	var gpus []hwinfo.GPU
	for _, entry := range entries {
		name := entry.Name()
		if !hwinfo.IsCardDevice(name) {
			continue
		}

		devicePath := filepath.Join(drmBase, name, "device")
		driver := hwinfo.ReadDriverName(devicePath)
		if driver != "nvidia" && driver != "nouveau" {
			continue
		}

		gpu := hwinfo.GPU{Driver: driver}
		gpu.Vendor, gpu.PCIDeviceID, gpu.PCISlot = hwinfo.ParsePCIUevent(devicePath)

		if driver == "nvidia" && gpu.PCISlot != "" {
			p.enrichFromProc(&gpu)
		}

		gpus = append(gpus, gpu)
	}

	return gpus
}

// enrichFromProc reads additional GPU information from
// /proc/driver/nvidia/gpus/<pci-slot>/information, which the
// proprietary nvidia driver provides. The file contains key-value
// lines like:
//
//	Model:           NVIDIA GeForce RTX 4090
//	GPU UUID:        GPU-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func (p *Prober) enrichFromProc(gpu *hwinfo.GPU) {
	infoPath := filepath.Join(p.procRoot, "driver/nvidia/gpus", gpu.PCISlot, "information")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Model":
			gpu.ModelName = strings.TrimSpace(value)
		case "GPU UUID":
			gpu.UniqueID = strings.TrimSpace(value)
		}
	}
}

var driverVersionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// readDriverVersion parses /proc/driver/nvidia/version, whose first
// line looks like:
//
//	NVRM version: NVIDIA UNIX x86_64 Kernel Module  560.35.03  Thu Aug 29 ...
//	NVRM version: NVIDIA UNIX Open Kernel Module for x86_64  560.35.03  Release Build ...
func (p *Prober) readDriverVersion() string {
	first, _, _ := strings.Cut(hwinfo.ReadSysfsString(filepath.Join(p.procRoot, "driver/nvidia/version")), "\n")
	_, rest, ok := strings.Cut(first, "Kernel Module")
	if !ok {
		return ""
	}
	for _, field := range strings.Fields(rest) {
		if driverVersionPattern.MatchString(field) {
			return field
		}
	}
	return ""
}

// smiRow is one line of nvidia-smi output.
type smiRow struct {
	pciSlot           string
	name              string
	computeCapability string
	driverVersion     string
	uuid              string
}

func (p *Prober) querySMI(ctx context.Context) ([]smiRow, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	output, err := p.run(queryCtx, "nvidia-smi", smiQuery...)
	if err != nil {
		if ctx.Err() == nil && errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("nvidia-smi did not respond within %s", p.timeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, errors.New("nvidia-smi not found in PATH")
		}
		return nil, err
	}
	return parseSMI(output)
}

// parseSMI parses nvidia-smi CSV output. Fields reported as "[N/A]" or
// "[Not Supported]" become empty.
func parseSMI(output []byte) ([]smiRow, error) {
	reader := csv.NewReader(bytes.NewReader(output))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing nvidia-smi output: %w", err)
	}

	var rows []smiRow
	for _, record := range records {
		if len(record) < 4 {
			return nil, fmt.Errorf("parsing nvidia-smi output: expected at least 4 columns, got %d", len(record))
		}
		field := func(index int) string {
			if index >= len(record) {
				return ""
			}
			value := strings.TrimSpace(record[index])
			if strings.HasPrefix(value, "[") {
				return ""
			}
			return value
		}
		rows = append(rows, smiRow{
			pciSlot:           normalizePCISlot(field(0)),
			name:              field(1),
			computeCapability: field(2),
			driverVersion:     field(3),
			uuid:              field(4),
		})
	}
	return rows, nil
}

// normalizePCISlot lowercases a PCI address and shortens its domain to
// the four hex digits sysfs uses. nvidia-smi reports
// "00000000:01:00.0"; sysfs reports "0000:01:00.0".
func normalizePCISlot(slot string) string {
	slot = strings.ToLower(strings.TrimSpace(slot))
	domain, rest, ok := strings.Cut(slot, ":")
	if !ok {
		return slot
	}
	value, err := strconv.ParseUint(domain, 16, 32)
	if err != nil {
		return slot
	}
	return fmt.Sprintf("%04x:%s", value, rest)
}

// mergeSMI folds nvidia-smi rows into the sysfs enumeration. Rows with
// no sysfs counterpart (containers often hide /sys/class/drm) are
// appended as new GPUs.
func mergeSMI(gpus []hwinfo.GPU, rows []smiRow) []hwinfo.GPU {
	bySlot := make(map[string]int, len(gpus))
	for index, gpu := range gpus {
		bySlot[normalizePCISlot(gpu.PCISlot)] = index
	}
	for _, row := range rows {
		index, found := bySlot[row.pciSlot]
		if !found {
			gpus = append(gpus, hwinfo.GPU{
				Vendor:  "NVIDIA",
				Driver:  "nvidia",
				PCISlot: row.pciSlot,
			})
			index = len(gpus) - 1
			bySlot[row.pciSlot] = index
		}
		gpu := &gpus[index]
		gpu.ComputeCapability = row.computeCapability
		if gpu.ModelName == "" {
			gpu.ModelName = row.name
		}
		if gpu.UniqueID == "" {
			gpu.UniqueID = row.uuid
		}
	}
	return gpus
}
