// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/hwinfo"
)

// staticProber returns a fixed report and counts calls.
type staticProber struct {
	report hwinfo.AcceleratorReport
	calls  int
}

func (p *staticProber) Probe(context.Context) hwinfo.AcceleratorReport {
	p.calls++
	return p.report
}

func gpuReport(capability, driver string) hwinfo.AcceleratorReport {
	return hwinfo.AcceleratorReport{
		DriverLoaded:  true,
		DriverVersion: driver,
		GPUs: []hwinfo.GPU{{
			Vendor:            "NVIDIA",
			Driver:            "nvidia",
			PCISlot:           "0000:01:00.0",
			ModelName:         "Test GPU",
			ComputeCapability: capability,
		}},
	}
}

func TestResolveTable(t *testing.T) {
	var (
		absent     = hwinfo.AcceleratorReport{}
		lowCap     = gpuReport("6.1", "560.35.03")
		oldDriver  = gpuReport("8.0", "550.54.15")
		compatible = gpuReport("8.9", "560.35.03")
	)

	tests := []struct {
		name        string
		mode        string
		report      hwinfo.AcceleratorReport
		wantKind    Kind
		wantCode    failure.Code
		wantWarning bool
	}{
		{"cpu", "cpu", compatible, KindCPU, "", false},
		{"accelerator absent", "accelerator", absent, "", failure.CodeAcceleratorUnavailable, false},
		{"accelerator low capability", "accelerator", lowCap, "", failure.CodeDeviceUnsupported, false},
		{"accelerator old driver", "accelerator", oldDriver, "", failure.CodeDriverIncompatible, false},
		{"accelerator compatible", "accelerator", compatible, KindAccelerator, "", false},
		{"auto absent", "auto", absent, KindCPU, "", true},
		{"auto low capability", "auto", lowCap, KindCPU, "", true},
		{"auto old driver", "auto", oldDriver, KindCPU, "", true},
		{"auto compatible", "auto", compatible, KindAccelerator, "", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resolver, err := NewResolver(Options{Prober: &staticProber{report: test.report}})
			if err != nil {
				t.Fatalf("NewResolver: %v", err)
			}
			verdict, err := resolver.Resolve(context.Background(), test.mode)

			if test.wantCode != "" {
				if !failure.Is(err, test.wantCode) {
					t.Fatalf("Resolve error = %v, want code %s", err, test.wantCode)
				}
				if len(verdict.Fatals) != 1 {
					t.Errorf("Fatals = %v, want exactly one", verdict.Fatals)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if verdict.Device.Kind != test.wantKind {
				t.Errorf("Device.Kind = %q, want %q", verdict.Device.Kind, test.wantKind)
			}
			if got := len(verdict.Warnings) > 0; got != test.wantWarning {
				t.Errorf("Warnings = %v, want warning: %v", verdict.Warnings, test.wantWarning)
			}
			if len(verdict.Fatals) != 0 {
				t.Errorf("Fatals = %v, want none", verdict.Fatals)
			}
		})
	}
}

func TestResolveCPUSkipsProbe(t *testing.T) {
	prober := &staticProber{}
	resolver, err := NewResolver(Options{Prober: prober})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	verdict, err := resolver.Resolve(context.Background(), "CPU")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if verdict.Device.String() != "cpu" {
		t.Errorf("Device = %s, want cpu", verdict.Device)
	}
	if prober.calls != 0 {
		t.Errorf("prober called %d times for cpu mode", prober.calls)
	}
}

func TestResolveNeverCaches(t *testing.T) {
	prober := &staticProber{report: hwinfo.AcceleratorReport{}}
	resolver, err := NewResolver(Options{Prober: prober})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	first, _ := resolver.Resolve(context.Background(), "auto")
	if first.Device.Kind != KindCPU {
		t.Fatalf("first Device = %s, want cpu", first.Device)
	}

	prober.report = gpuReport("9.0", "570.86.10")
	second, err := resolver.Resolve(context.Background(), "auto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if second.Device.String() != "cuda:0" {
		t.Errorf("second Device = %s, want cuda:0", second.Device)
	}
	if prober.calls != 2 {
		t.Errorf("prober calls = %d, want 2", prober.calls)
	}
}

func TestResolveUnknownMode(t *testing.T) {
	resolver, err := NewResolver(Options{Prober: &staticProber{}})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	_, err = resolver.Resolve(context.Background(), "tpu")
	if !failure.Is(err, failure.CodeValidation) {
		t.Fatalf("Resolve(tpu) error = %v, want validation_error", err)
	}
	var typed *failure.Error
	if !errors.As(err, &typed) || typed.Details["requested"] != "tpu" {
		t.Errorf("details = %v, want requested=tpu", typed.Details)
	}
}

func TestParseModeAliases(t *testing.T) {
	tests := map[string]Mode{
		"":            ModeAuto,
		" Auto ":      ModeAuto,
		"cpu":         ModeCPU,
		"accelerator": ModeAccelerator,
		"cuda":        ModeAccelerator,
		"GPU":         ModeAccelerator,
	}
	for input, want := range tests {
		got, err := ParseMode(input)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
}

func TestShortfallDetails(t *testing.T) {
	err := FactsFrom(gpuReport("6.1", "560.35.03")).Shortfall()
	if err == nil || err.Code != failure.CodeDeviceUnsupported {
		t.Fatalf("Shortfall = %v, want device_unsupported", err)
	}
	if err.Details["compute_capability"] != "6.1" || err.Details["minimum"] != "7.0" {
		t.Errorf("details = %v", err.Details)
	}

	err = FactsFrom(gpuReport("8.0", "550.54.15")).Shortfall()
	if err == nil || err.Details["detected"] != "550.54.15" || err.Details["minimum"] != "560.28" {
		t.Errorf("driver shortfall = %v", err)
	}
}

func TestUnknownDriverVersionPasses(t *testing.T) {
	facts := FactsFrom(gpuReport("8.0", ""))
	if err := facts.Shortfall(); err != nil {
		t.Errorf("Shortfall with unknown driver = %v, want nil", err)
	}
}

func TestGPUWithoutCapabilityIsAbsent(t *testing.T) {
	report := hwinfo.AcceleratorReport{
		DriverLoaded: true,
		GPUs:         []hwinfo.GPU{{Driver: "nvidia", PCISlot: "0000:01:00.0"}},
		ToolError:    "nvidia-smi not found in PATH",
	}
	err := FactsFrom(report).Shortfall()
	if err == nil || err.Code != failure.CodeAcceleratorUnavailable {
		t.Fatalf("Shortfall = %v, want accelerator_unavailable", err)
	}
	if err.Details["probe_error"] != "nvidia-smi not found in PATH" {
		t.Errorf("details = %v", err.Details)
	}
}
