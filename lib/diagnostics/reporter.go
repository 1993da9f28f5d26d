// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/periogt/periogt/lib/bootstrap"
	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/codec"
	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/digest"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/hwinfo"
	"github.com/periogt/periogt/lib/stagefs"
	"github.com/periogt/periogt/lib/version"
)

// Paths are the configured directories under inspection.
type Paths struct {
	CheckpointDir string
	ResultsDir    string
	SrcDir        string
}

// Options configures a Reporter. Probe hooks default to the real
// implementations; tests replace them.
type Options struct {
	Paths Paths

	// RequestedDevice is the configured device mode.
	RequestedDevice string

	// Storage is the staging root (Paths.CheckpointDir). Required.
	Storage stagefs.Storage

	// Catalog supplies the required-artifact set. Required.
	Catalog *catalog.Catalog

	// Coordinator reports bootstrap and lease state. Required.
	Coordinator *bootstrap.Coordinator

	// Prober supplies accelerator facts. Required.
	Prober hwinfo.AcceleratorProber

	// Host returns static host facts. Nil means hwinfo.ProbeHost.
	Host func() hwinfo.Host

	// Getenv reads the process environment. Nil means os.Getenv.
	Getenv func(string) string

	// FreeBytes reports free space on the filesystem holding path.
	// Nil means the statfs-based implementation.
	FreeBytes func(path string) (uint64, error)

	// SelfDigest identifies the running binary. Nil means
	// version.SelfDigest.
	SelfDigest func() (digest.Digest, string, error)

	Logger *slog.Logger
}

// Reporter runs read-only environment diagnostics.
type Reporter struct {
	options Options
	logger  *slog.Logger
}

// NewReporter validates options and fills in defaults.
func NewReporter(options Options) (*Reporter, error) {
	switch {
	case options.Storage == nil:
		return nil, fmt.Errorf("diagnostics: Storage is required")
	case options.Catalog == nil:
		return nil, fmt.Errorf("diagnostics: Catalog is required")
	case options.Coordinator == nil:
		return nil, fmt.Errorf("diagnostics: Coordinator is required")
	case options.Prober == nil:
		return nil, fmt.Errorf("diagnostics: Prober is required")
	}
	if options.Host == nil {
		options.Host = hwinfo.ProbeHost
	}
	if options.Getenv == nil {
		options.Getenv = os.Getenv
	}
	if options.FreeBytes == nil {
		options.FreeBytes = freeBytes
	}
	if options.SelfDigest == nil {
		options.SelfDigest = version.SelfDigest
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reporter{options: options, logger: logger}, nil
}

// Run collects the report. Probe failures become info or warnings; Run
// itself only fails when the context is cancelled.
func (r *Reporter) Run(ctx context.Context) (*Report, error) {
	report := NewReport()

	r.environment(report)
	r.accelerator(ctx, report)
	r.paths(report)
	if err := r.staging(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Reporter) environment(report *Report) {
	host := r.options.Host()
	report.Info["go_version"] = runtime.Version()
	report.Info["platform"] = runtime.GOOS + "/" + runtime.GOARCH
	report.Info["kernel_release"] = host.KernelRelease
	report.Info["hostname"] = host.Hostname
	report.Info["cpu_model"] = host.CPUModel
	report.Info["memory_total_mb"] = host.MemoryTotalMB
	report.Info["periogt_version"] = version.Info()

	if sum, path, err := r.options.SelfDigest(); err == nil {
		report.Info["binary"] = path
		report.Info["binary_digest"] = sum.String()
	} else {
		r.logger.Debug("binary digest unavailable", "error", err)
	}

	backend := r.options.Getenv("DGLBACKEND")
	report.Info["dglbackend"] = backend
	if backend != "pytorch" {
		report.Warn("DGLBACKEND is not set to 'pytorch'. Set DGLBACKEND=pytorch in your environment.")
	}
}

func (r *Reporter) accelerator(ctx context.Context, report *Report) {
	facts := device.FactsFrom(r.options.Prober.Probe(ctx))

	report.Info["accelerator_available"] = facts.Present
	report.Info["gpu_count"] = len(facts.Report.GPUs)
	report.Info["driver_loaded"] = facts.Report.DriverLoaded
	report.Info["driver_version"] = facts.Report.DriverVersion
	report.Info["gpu_name"] = facts.GPU.ModelName
	report.Info["compute_capability"] = facts.GPU.ComputeCapability
	if facts.Report.ToolError != "" {
		report.Info["probe_error"] = facts.Report.ToolError
	}

	report.Info["device_requested"] = r.options.RequestedDevice
	mode, err := device.ParseMode(r.options.RequestedDevice)
	if err != nil {
		report.Fatal(fmt.Sprintf("Invalid device mode %q: must be one of auto, cpu, accelerator.", r.options.RequestedDevice))
		return
	}
	report.Info["device"] = device.Decide(mode, facts).Device.String()

	// A present accelerator that fails the minimums is fatal whatever
	// the requested mode: auto would silently run on CPU.
	if shortfall := facts.Shortfall(); shortfall != nil {
		switch shortfall.Code {
		case failure.CodeAcceleratorUnavailable:
			if mode == device.ModeAccelerator {
				report.Fatal("Accelerator requested but no usable GPU is available.")
			}
		default:
			report.Fatal(shortfall.Message + ".")
		}
	}

	if facts.Report.DriverLoaded && !facts.Present {
		report.Warn("NVIDIA driver detected but no usable accelerator; check that the container runs with GPU support (apptainer --nv, docker --gpus) and that nvidia-smi is on PATH.")
	}
}

func (r *Reporter) paths(report *Report) {
	paths := r.options.Paths
	report.Info["checkpoint_dir"] = paths.CheckpointDir
	report.Info["results_dir"] = paths.ResultsDir
	report.Info["src_dir"] = paths.SrcDir

	if !isDirectory(paths.SrcDir) {
		report.Fatal("Source directory missing: " + paths.SrcDir)
	}
	if !isDirectory(paths.CheckpointDir) {
		report.Fatal("Checkpoint directory missing: " + paths.CheckpointDir)
		return
	}

	size, err := treeSize(paths.CheckpointDir)
	if err != nil {
		r.logger.Warn("measuring checkpoint directory", "checkpoint_dir", paths.CheckpointDir, "error", err)
	} else {
		report.Info["checkpoint_size_bytes"] = size
		report.Info["checkpoint_size_gib"] = float64(size) / (1 << 30)
	}
	if free, err := r.options.FreeBytes(paths.CheckpointDir); err == nil {
		report.Info["staging_free_bytes"] = free
	} else {
		r.logger.Debug("free space unavailable", "checkpoint_dir", paths.CheckpointDir, "error", err)
	}
}

func (r *Reporter) staging(ctx context.Context, report *Report) error {
	status, err := r.options.Coordinator.Status(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		report.Warn(fmt.Sprintf("Could not inspect staging root: %v", err))
	} else {
		report.Info["bootstrap_state"] = string(status.State)
		if status.Lease.Present {
			report.Info["lease_age_seconds"] = int(status.Lease.Age.Seconds())
			if holder := status.Lease.Holder; holder != nil {
				report.Info["lease_holder"] = fmt.Sprintf("%s (pid %d on %s)", holder.ID, holder.PID, holder.Hostname)
			} else if len(status.Lease.Body) > 0 {
				report.Info["lease_body"] = describeMarkerBody(status.Lease.Body)
			}
		}
		if status.State == bootstrap.StateStale {
			report.Warn(fmt.Sprintf("Bootstrap lease is stale (%s old); the next setup will take it over.",
				status.Lease.Age.Truncate(time.Second)))
		}
	}

	missing, err := bootstrap.MissingRequiredArtifacts(r.options.Storage, r.options.Catalog.Required)
	if err != nil {
		report.Warn(fmt.Sprintf("Could not check required artifacts: %v", err))
		return nil
	}
	keys := make([]string, 0, len(missing))
	for key := range missing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	report.Info["missing_artifacts"] = keys
	if len(keys) > 0 {
		described := make([]string, len(keys))
		for i, key := range keys {
			described[i] = fmt.Sprintf("%s (%s)", key, missing[key])
		}
		report.Fatal("Missing required artifacts: " + strings.Join(described, ", "))
	}
	return nil
}

// describeMarkerBody renders a marker body that is not a holder record:
// CBOR diagnostic notation when it decodes, a quoted excerpt otherwise.
func describeMarkerBody(body []byte) string {
	if notation, err := codec.Diagnose(body); err == nil {
		return notation
	}
	const limit = 64
	if len(body) > limit {
		return fmt.Sprintf("%q...", body[:limit])
	}
	return fmt.Sprintf("%q", body)
}

func isDirectory(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// treeSize sums the sizes of regular files under root.
func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
