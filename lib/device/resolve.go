// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/hwinfo"
)

// Mode is the requested execution mode.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeCPU         Mode = "cpu"
	ModeAccelerator Mode = "accelerator"
)

// Minimums for the accelerator path: Volta-class hardware and a
// driver new enough for the CUDA 12.6 runtime.
var (
	MinCapability = Version{7, 0}
	MinDriver     = Version{560, 28}
)

// ParseMode normalizes a requested mode. Empty means auto. "cuda" and
// "gpu" are accepted as spellings of accelerator since existing
// deployments set PERIOGT_DEVICE=cuda.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return ModeAuto, nil
	case "cpu":
		return ModeCPU, nil
	case "accelerator", "cuda", "gpu":
		return ModeAccelerator, nil
	default:
		return "", failure.Validation("device mode must be one of: auto, cpu, accelerator").
			With("requested", value)
	}
}

// Kind is the resolved device class.
type Kind string

const (
	KindCPU         Kind = "cpu"
	KindAccelerator Kind = "accelerator"
)

// Device is an approved execution device.
type Device struct {
	Kind Kind `json:"kind"`

	// Ordinal indexes the usable accelerators; always 0 for CPU.
	Ordinal int `json:"ordinal,omitempty"`

	// GPU describes the selected accelerator. Nil for CPU.
	GPU *hwinfo.GPU `json:"gpu,omitempty"`
}

// String returns the framework device name: "cpu" or "cuda:N".
func (d Device) String() string {
	if d.Kind == KindAccelerator {
		return fmt.Sprintf("cuda:%d", d.Ordinal)
	}
	return "cpu"
}

// Facts is one accelerator probe, reduced to what the decision table
// needs.
type Facts struct {
	// Present is true when at least one GPU has a compute capability.
	Present bool

	// GPU is the first usable accelerator when Present.
	GPU hwinfo.GPU

	Capability Version
	Driver     Version

	// Report is the raw probe, kept for diagnostics.
	Report hwinfo.AcceleratorReport
}

// FactsFrom selects the first usable accelerator from a probe report.
func FactsFrom(report hwinfo.AcceleratorReport) Facts {
	facts := Facts{
		Report: report,
		Driver: ParseVersion(report.DriverVersion),
	}
	if usable := report.Usable(); len(usable) > 0 {
		facts.Present = true
		facts.GPU = usable[0]
		facts.Capability = ParseVersion(usable[0].ComputeCapability)
	}
	return facts
}

// Shortfall returns the first reason the accelerator cannot be used,
// checked in table order, or nil when it can. An unknown driver
// version is not a shortfall: the runtime will fail loudly on its own
// if the driver really is too old.
func (f Facts) Shortfall() *failure.Error {
	if !f.Present {
		err := failure.AcceleratorUnavailable("accelerator requested but no usable GPU is available; set PERIOGT_DEVICE=cpu or expose the GPU to this process").
			With("driver_loaded", f.Report.DriverLoaded)
		if f.Report.ToolError != "" {
			err = err.With("probe_error", f.Report.ToolError)
		}
		return err
	}
	if f.Capability.Less(MinCapability) {
		return failure.DeviceUnsupported("GPU %s has compute capability %s, below the minimum %s",
			f.GPU.ModelName, f.Capability, MinCapability).
			With("gpu_name", f.GPU.ModelName).
			With("compute_capability", f.Capability.String()).
			With("minimum", MinCapability.String())
	}
	if !f.Driver.IsZero() && f.Driver.Less(MinDriver) {
		return failure.DriverIncompatible("NVIDIA driver %s is older than the minimum %s required by CUDA 12.6",
			f.Report.DriverVersion, MinDriver).
			With("detected", f.Report.DriverVersion).
			With("minimum", MinDriver.String())
	}
	return nil
}

// Verdict is the outcome of one resolution.
type Verdict struct {
	Requested Mode     `json:"requested"`
	Device    Device   `json:"device"`
	Warnings  []string `json:"warnings,omitempty"`

	// Fatals holds the typed failures that prevent the requested mode.
	// Non-empty only for an accelerator request.
	Fatals []*failure.Error `json:"-"`
}

// Decide applies the device selection table. It is a pure function of
// the mode and the probe.
func Decide(mode Mode, facts Facts) Verdict {
	verdict := Verdict{Requested: mode, Device: Device{Kind: KindCPU}}
	if mode == ModeCPU {
		return verdict
	}

	if shortfall := facts.Shortfall(); shortfall != nil {
		if mode == ModeAccelerator {
			verdict.Fatals = append(verdict.Fatals, shortfall)
		} else {
			verdict.Warnings = append(verdict.Warnings, autoFallbackWarning(shortfall))
		}
		return verdict
	}

	gpu := facts.GPU
	verdict.Device = Device{Kind: KindAccelerator, GPU: &gpu}
	return verdict
}

func autoFallbackWarning(shortfall *failure.Error) string {
	switch shortfall.Code {
	case failure.CodeAcceleratorUnavailable:
		return "no usable accelerator; falling back to CPU"
	default:
		return shortfall.Message + "; falling back to CPU"
	}
}

// Options configures a Resolver.
type Options struct {
	// Prober supplies accelerator facts. Required.
	Prober hwinfo.AcceleratorProber

	// Logger receives auto-mode fallback warnings. Nil discards.
	Logger *slog.Logger
}

// Resolver turns a requested mode into an approved device.
type Resolver struct {
	prober hwinfo.AcceleratorProber
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(options Options) (*Resolver, error) {
	if options.Prober == nil {
		return nil, fmt.Errorf("device: Prober is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{prober: options.Prober, logger: logger}, nil
}

// Probe runs the accelerator probe.
func (r *Resolver) Probe(ctx context.Context) Facts {
	return FactsFrom(r.prober.Probe(ctx))
}

// Resolve parses the requested mode, probes the hardware, and applies
// the selection table. An accelerator request that cannot be honored
// returns its typed failure along with the verdict.
func (r *Resolver) Resolve(ctx context.Context, requested string) (Verdict, error) {
	mode, err := ParseMode(requested)
	if err != nil {
		return Verdict{}, err
	}
	if mode == ModeCPU {
		return Decide(mode, Facts{}), nil
	}

	verdict := Decide(mode, r.Probe(ctx))
	for _, warning := range verdict.Warnings {
		r.logger.Warn("device fallback", "requested", string(mode), "reason", warning)
	}
	if len(verdict.Fatals) > 0 {
		return verdict, verdict.Fatals[0]
	}
	r.logger.Debug("device resolved", "requested", string(mode), "device", verdict.Device.String())
	return verdict, nil
}
