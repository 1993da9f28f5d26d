// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ProbeHost collects static host facts.
func ProbeHost() Host {
	return probeHostFrom("/proc", "/sys")
}

// probeHostFrom is the testable implementation of ProbeHost. It accepts
// root paths for /proc and /sys so tests can point at synthetic trees.
func probeHostFrom(procRoot, sysRoot string) Host {
	host := Host{
		KernelRelease: KernelRelease(),
		CPUModel:      readCPUModel(filepath.Join(procRoot, "cpuinfo")),
		MemoryTotalMB: memoryTotalMB(),
	}
	host.Hostname, _ = os.Hostname()

	cpuBase := filepath.Join(sysRoot, "devices/system/cpu")
	host.Sockets = countUniqueTopologyValues(cpuBase, "physical_package_id")
	if cores := countUniqueCoreIDs(cpuBase); cores > 0 && host.Sockets > 0 {
		host.CoresPerSocket = cores / host.Sockets
	}
	host.ThreadsPerCore = probeThreadsPerCore(cpuBase)
	return host
}

// KernelRelease returns the kernel release string from uname(2).
func KernelRelease() string {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(utsname.Release[:])
}

// memoryTotalMB returns total RAM in megabytes from sysinfo(2).
func memoryTotalMB() int {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int(uint64(info.Totalram) * uint64(info.Unit) / (1024 * 1024))
}

// readCPUModel extracts the first "model name" line from /proc/cpuinfo.
func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			if _, value, ok := strings.Cut(line, ":"); ok {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// cpuDirectories returns the cpuN entries under cpuBase, skipping
// cpufreq, cpuidle and friends.
func cpuDirectories(cpuBase string) []string {
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		suffix := name[3:]
		if len(suffix) == 0 || suffix[0] < '0' || suffix[0] > '9' {
			continue
		}
		names = append(names, name)
	}
	return names
}

// countUniqueTopologyValues counts unique values of a topology field
// (e.g., physical_package_id) across all CPU directories.
func countUniqueTopologyValues(cpuBase, field string) int {
	unique := make(map[string]struct{})
	for _, name := range cpuDirectories(cpuBase) {
		value := ReadSysfsString(filepath.Join(cpuBase, name, "topology", field))
		if value != "" {
			unique[value] = struct{}{}
		}
	}
	return len(unique)
}

// countUniqueCoreIDs counts unique (physical_package_id, core_id) pairs
// across all CPUs, which is the physical core count across sockets.
func countUniqueCoreIDs(cpuBase string) int {
	type coreKey struct {
		packageID string
		coreID    string
	}
	unique := make(map[coreKey]struct{})
	for _, name := range cpuDirectories(cpuBase) {
		topologyDir := filepath.Join(cpuBase, name, "topology")
		packageID := ReadSysfsString(filepath.Join(topologyDir, "physical_package_id"))
		coreID := ReadSysfsString(filepath.Join(topologyDir, "core_id"))
		if packageID != "" && coreID != "" {
			unique[coreKey{packageID, coreID}] = struct{}{}
		}
	}
	return len(unique)
}

// probeThreadsPerCore determines threads per core from the first CPU's
// thread_siblings_list. "0,96" means two threads share the core; "0"
// alone means one.
func probeThreadsPerCore(cpuBase string) int {
	siblings := ReadSysfsString(filepath.Join(cpuBase, "cpu0/topology/thread_siblings_list"))
	if siblings == "" {
		return 1
	}
	return strings.Count(siblings, ",") + 1
}
