// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/bootstrap"
	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/hwinfo"
	"github.com/periogt/periogt/lib/testutil"
)

// provisioned is a fully extracted checkpoint directory.
var provisioned = map[string]string{
	"pretrained_ckpt/pretrain.pth":      "backbone",
	"finetuned_ckpt/eps/best_model.pth": "eps head",
	"finetuned_ckpt/tg/best_model.pth":  "tg head",
	"finetuned_ckpt/best_model_cp.pth":  "cp head",
	catalog.LabelStatsFile:              `{"eps": {"mean": 3.1, "std": 0.4}}`,
	catalog.ScalerFile:                  "scaler",
}

type staticProber hwinfo.AcceleratorReport

func (p staticProber) Probe(context.Context) hwinfo.AcceleratorReport {
	return hwinfo.AcceleratorReport(p)
}

var ampere = hwinfo.AcceleratorReport{
	GPUs: []hwinfo.GPU{{
		Vendor:            "nvidia",
		Driver:            "nvidia",
		PCISlot:           "0000:01:00.0",
		ModelName:         "NVIDIA A100-SXM4-80GB",
		ComputeCapability: "8.0",
	}},
	DriverLoaded:  true,
	DriverVersion: "570.86.15",
}

// testHarness points the configuration at a temporary base directory
// and captures command output.
type testHarness struct {
	t      *testing.T
	base   string
	stdout *bytes.Buffer
	app    *app
}

func newHarness(t *testing.T, report hwinfo.AcceleratorReport) *testHarness {
	t.Helper()
	for _, name := range []string{
		"PERIOGT_CONFIG",
		"PERIOGT_CHECKPOINT_DIR",
		"PERIOGT_RESULTS_DIR",
		"PERIOGT_SRC_DIR",
		"PERIOGT_DEVICE",
		"PERIOGT_CATALOG",
		"PERIOGT_LEASE_STALE_SECONDS",
		"PERIOGT_SKIP_DOWNLOAD",
		"PERIOGT_S3_ENDPOINT",
		"PERIOGT_S3_ACCESS_KEY",
		"PERIOGT_S3_SECRET_KEY",
		"PERIOGT_S3_REGION",
		"PERIOGT_S3_USE_SSL",
	} {
		t.Setenv(name, "")
	}
	base := t.TempDir()
	t.Setenv("PERIOGT_BASE_DIR", base)

	stdout := &bytes.Buffer{}
	return &testHarness{
		t:      t,
		base:   base,
		stdout: stdout,
		app: &app{
			stdout:    stdout,
			newProber: func() hwinfo.AcceleratorProber { return staticProber(report) },
			newLogger: func(slog.Level) *slog.Logger {
				return slog.New(slog.NewTextHandler(io.Discard, nil))
			},
		},
	}
}

func (h *testHarness) checkpointDir() string { return filepath.Join(h.base, "checkpoints") }

func (h *testHarness) provision() {
	h.t.Helper()
	testutil.WriteTree(h.t, h.checkpointDir(), provisioned)
}

// run executes one command line and returns its error. Output from
// earlier runs is discarded.
func (h *testHarness) run(args ...string) error {
	h.stdout.Reset()
	return h.app.root().Execute(context.Background(), args)
}

func (h *testHarness) decode(target any) {
	h.t.Helper()
	if err := json.Unmarshal(h.stdout.Bytes(), target); err != nil {
		h.t.Fatalf("output is not JSON: %v\n%s", err, h.stdout.String())
	}
}

func TestSetupSkipDownloadIndexesExistingTree(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()

	if err := h.run("setup", "--skip-download", "--json"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	var result setupResult
	h.decode(&result)

	if result.Outcome != string(bootstrap.OutcomeBootstrapped) {
		t.Errorf("outcome = %q, want %q", result.Outcome, bootstrap.OutcomeBootstrapped)
	}
	var ids []string
	for _, property := range result.Properties {
		ids = append(ids, property.ID)
		if !filepath.IsAbs(property.Checkpoint) {
			t.Errorf("checkpoint for %s is not absolute: %s", property.ID, property.Checkpoint)
		}
	}
	if strings.Join(ids, ",") != "cp,eps,tg" {
		t.Errorf("properties = %v, want [cp eps tg]", ids)
	}
	if result.IndexPath != filepath.Join(h.checkpointDir(), catalog.IndexFile) {
		t.Errorf("index path = %s", result.IndexPath)
	}
	if _, err := os.Stat(filepath.Join(h.checkpointDir(), bootstrap.ReadyMarker)); err != nil {
		t.Errorf("ready marker missing: %v", err)
	}
	if info, err := os.Stat(filepath.Join(h.base, "results")); err != nil || !info.IsDir() {
		t.Errorf("results directory not created: %v", err)
	}

	// The second run only reads the index.
	if err := h.run("setup", "--json"); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	var second setupResult
	h.decode(&second)
	if second.Outcome != string(bootstrap.OutcomeCached) {
		t.Errorf("second outcome = %q, want %q", second.Outcome, bootstrap.OutcomeCached)
	}
}

func TestSetupSkipDownloadFromEnvironment(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()
	t.Setenv("PERIOGT_SKIP_DOWNLOAD", "1")

	if err := h.run("setup"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "is ready (bootstrapped") {
		t.Errorf("unexpected output:\n%s", h.stdout.String())
	}
	for _, id := range []string{"cp", "eps", "tg"} {
		if !strings.Contains(h.stdout.String(), id) {
			t.Errorf("output should list %s:\n%s", id, h.stdout.String())
		}
	}
}

func TestSetupFreshLeaseFailsFast(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()
	marker := filepath.Join(h.checkpointDir(), bootstrap.DownloadingMarker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := h.run("setup", "--skip-download")
	if !failure.Is(err, failure.CodeBootstrapInProgress) {
		t.Fatalf("setup error = %v, want bootstrap_in_progress", err)
	}
	var stderr bytes.Buffer
	if code := cli.ReportError(&stderr, err); code != failure.ExitTransient {
		t.Errorf("exit status = %d, want %d", code, failure.ExitTransient)
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Errorf("another worker's lease must be left alone: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(h.checkpointDir(), catalog.IndexFile)); statErr == nil {
		t.Error("index written while another worker holds the lease")
	}
}

func TestSetupWaitGivesUp(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()
	if err := os.WriteFile(filepath.Join(h.checkpointDir(), bootstrap.DownloadingMarker), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := h.run("setup", "--skip-download", "--wait", "50ms")
	if !failure.Is(err, failure.CodeBootstrapInProgress) {
		t.Fatalf("setup error = %v, want bootstrap_in_progress", err)
	}
	if !strings.Contains(err.Error(), "did not finish within 50ms") {
		t.Errorf("error should name the wait, got %v", err)
	}
}

func TestSetupRejectsArguments(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	if err := h.run("setup", "extra"); !failure.Is(err, failure.CodeValidation) {
		t.Errorf("setup extra = %v, want validation failure", err)
	}
}

func TestSetupHelpNamesNoDigestAlgorithm(t *testing.T) {
	// The catalog decides the algorithm (md5 for the published
	// archives), so the help must not promise a particular one.
	description := newApp().setupCommand().Description
	if !strings.Contains(description, "catalog digest") {
		t.Errorf("setup description does not mention the catalog digest:\n%s", description)
	}
	for _, algorithm := range []string{"SHA-256", "sha256", "MD5", "BLAKE3"} {
		if strings.Contains(description, algorithm) {
			t.Errorf("setup description names %s", algorithm)
		}
	}
}

func TestInvalidConfigurationIsValidationFailure(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	t.Setenv("PERIOGT_LEASE_STALE_SECONDS", "soon")

	err := h.run("status")
	if !failure.Is(err, failure.CodeValidation) {
		t.Fatalf("status error = %v, want validation failure", err)
	}
	if !strings.Contains(err.Error(), "PERIOGT_LEASE_STALE_SECONDS") {
		t.Errorf("error should name the bad variable, got %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	if err := h.run("status", "--log-level", "chatty"); !failure.Is(err, failure.CodeValidation) {
		t.Errorf("status --log-level chatty = %v, want validation failure", err)
	}
}

func TestStatusEmptyRoot(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})

	if err := h.run("status", "--json"); err != nil {
		t.Fatalf("status: %v", err)
	}
	var result statusResult
	h.decode(&result)
	if result.State != bootstrap.StateAbsent {
		t.Errorf("state = %q, want %q", result.State, bootstrap.StateAbsent)
	}
	if result.Lease != nil {
		t.Errorf("lease = %+v, want none", result.Lease)
	}
	for _, key := range []string{"index_json", "label_stats_json", "descriptor_scaler_pkl", "pretrained_ckpt", "finetuned_ckpt"} {
		if _, ok := result.MissingArtifacts[key]; !ok {
			t.Errorf("missing artifacts should include %s: %v", key, result.MissingArtifacts)
		}
	}
	if _, err := os.Stat(h.checkpointDir()); err == nil {
		t.Error("status must not create the checkpoint directory")
	}
}

func TestStatusReportsLease(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()
	if err := os.WriteFile(filepath.Join(h.checkpointDir(), bootstrap.DownloadingMarker), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.run("status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	output := h.stdout.String()
	for _, want := range []string{"State:          downloading", "Lease age:", "index_json"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestPropertiesAfterSetup(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()
	if err := h.run("setup", "--skip-download"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := h.run("properties", "--json"); err != nil {
		t.Fatalf("properties: %v", err)
	}
	var properties []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	h.decode(&properties)
	if len(properties) != 3 {
		t.Fatalf("got %d properties, want 3: %+v", len(properties), properties)
	}
	for _, property := range properties {
		if property.Label == "" {
			t.Errorf("property %s has no label", property.ID)
		}
	}
}

func TestPropertiesBeforeSetup(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})

	err := h.run("properties")
	if !failure.Is(err, failure.CodeCheckpointMissing) {
		t.Fatalf("properties error = %v, want checkpoint_missing", err)
	}
	path, _ := failure.Classify(err).Details["path"].(string)
	if !strings.HasPrefix(path, h.checkpointDir()) {
		t.Errorf("path detail = %q, want a path under %s", path, h.checkpointDir())
	}
}

func TestLoadOnCPU(t *testing.T) {
	h := newHarness(t, ampere)
	h.provision()

	if err := h.run("load", "--skip-download", "--device", "cpu", "--json"); err != nil {
		t.Fatalf("load: %v", err)
	}
	var result loadResult
	h.decode(&result)
	if result.Device != "cpu" {
		t.Errorf("device = %q, want cpu", result.Device)
	}
	if len(result.Checkpoints) != 3 {
		t.Fatalf("loaded %d checkpoints, want 3", len(result.Checkpoints))
	}
	for _, checkpoint := range result.Checkpoints {
		if checkpoint.Digest.IsZero() || checkpoint.Size == 0 {
			t.Errorf("checkpoint %s not verified: %+v", checkpoint.PropertyID, checkpoint)
		}
		if checkpoint.Device != "cpu" {
			t.Errorf("checkpoint %s device = %q", checkpoint.PropertyID, checkpoint.Device)
		}
	}
}

func TestLoadOnAccelerator(t *testing.T) {
	h := newHarness(t, ampere)
	h.provision()

	if err := h.run("load", "--skip-download", "--device", "accelerator", "--json", "tg"); err != nil {
		t.Fatalf("load: %v", err)
	}
	var result loadResult
	h.decode(&result)
	if result.Device != "cuda:0" {
		t.Errorf("device = %q, want cuda:0", result.Device)
	}
	if len(result.Checkpoints) != 1 || result.Checkpoints[0].PropertyID != "tg" {
		t.Errorf("checkpoints = %+v, want only tg", result.Checkpoints)
	}
}

func TestLoadAcceleratorUnavailable(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()

	err := h.run("load", "--skip-download", "--device", "accelerator")
	if !failure.Is(err, failure.CodeAcceleratorUnavailable) {
		t.Fatalf("load error = %v, want accelerator_unavailable", err)
	}
}

func TestLoadUnknownProperty(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	h.provision()

	err := h.run("load", "--skip-download", "viscosity")
	if !failure.Is(err, failure.CodeValidation) {
		t.Fatalf("load error = %v, want validation failure", err)
	}
}

func TestLoadRejectsZeroParallelism(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	if err := h.run("load", "--parallel", "0"); !failure.Is(err, failure.CodeValidation) {
		t.Errorf("load --parallel 0 = %v, want validation failure", err)
	}
}

func TestDevice(t *testing.T) {
	tests := []struct {
		name       string
		report     hwinfo.AcceleratorReport
		args       []string
		wantDevice string
		wantWarn   bool
		wantCode   failure.Code
	}{
		{name: "auto with accelerator", report: ampere, wantDevice: "cuda:0"},
		{name: "auto without accelerator", wantDevice: "cpu", wantWarn: true},
		{name: "cpu ignores accelerator", report: ampere, args: []string{"--device", "cpu"}, wantDevice: "cpu"},
		{name: "accelerator without one", args: []string{"--device", "accelerator"}, wantCode: failure.CodeAcceleratorUnavailable},
		{name: "unknown mode", args: []string{"--device", "tpu"}, wantCode: failure.CodeValidation},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, test.report)
			err := h.run(append([]string{"device", "--json"}, test.args...)...)
			if test.wantCode != "" {
				if !failure.Is(err, test.wantCode) {
					t.Fatalf("device error = %v, want %s", err, test.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("device: %v", err)
			}
			var result deviceResult
			h.decode(&result)
			if result.Device != test.wantDevice {
				t.Errorf("device = %q, want %q", result.Device, test.wantDevice)
			}
			if (len(result.Warnings) > 0) != test.wantWarn {
				t.Errorf("warnings = %v, want warning: %t", result.Warnings, test.wantWarn)
			}
		})
	}
}

func TestDoctorHealthyNode(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	t.Setenv("DGLBACKEND", "pytorch")
	h.provision()
	if err := os.MkdirAll(filepath.Join(h.base, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := h.run("setup", "--skip-download"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := h.run("doctor", "--json"); err != nil {
		t.Fatalf("doctor: %v\n%s", err, h.stdout.String())
	}
	var report struct {
		Verdict  string         `json:"verdict"`
		ExitCode int            `json:"exit_code"`
		Info     map[string]any `json:"info"`
		Warnings []string       `json:"warnings"`
		Fatals   []string       `json:"fatals"`
	}
	h.decode(&report)
	if report.Verdict != "PASS" || report.ExitCode != 0 {
		t.Errorf("verdict = %s (%d), want PASS; warnings %v, fatals %v",
			report.Verdict, report.ExitCode, report.Warnings, report.Fatals)
	}
	if report.Info["bootstrap_state"] != "ready" {
		t.Errorf("bootstrap_state = %v, want ready", report.Info["bootstrap_state"])
	}
	if report.Info["device"] != "cpu" {
		t.Errorf("device = %v, want cpu", report.Info["device"])
	}
}

func TestDoctorEmptyNodeFails(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	t.Setenv("DGLBACKEND", "")

	err := h.run("doctor")
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) || exitError.Code != 2 {
		t.Fatalf("doctor error = %v, want exit status 2", err)
	}
	output := h.stdout.String()
	for _, want := range []string{
		"FAIL",
		"Source directory missing: ",
		"Checkpoint directory missing: ",
		"Missing required artifacts: ",
		"DGLBACKEND is not set to 'pytorch'",
		"bootstrap_state",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("doctor output missing %q:\n%s", want, output)
		}
	}
	if _, statErr := os.Stat(h.checkpointDir()); statErr == nil {
		t.Error("doctor must not create the checkpoint directory")
	}
}

func TestDoctorInvalidDeviceIsReported(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	t.Setenv("PERIOGT_DEVICE", "tpu")

	err := h.run("doctor", "--json")
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) || exitError.Code != 2 {
		t.Fatalf("doctor error = %v, want exit status 2", err)
	}
	if !strings.Contains(h.stdout.String(), `Invalid device mode \"tpu\"`) {
		t.Errorf("doctor should report the invalid mode:\n%s", h.stdout.String())
	}
}

func TestRootVersion(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	if err := h.run("--version"); err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.HasPrefix(h.stdout.String(), "periogt ") {
		t.Errorf("--version output = %q", h.stdout.String())
	}
	if err := h.run("version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "Go: ") {
		t.Errorf("version output = %q", h.stdout.String())
	}
}

func TestRootUnknownCommand(t *testing.T) {
	h := newHarness(t, hwinfo.AcceleratorReport{})
	err := h.run("doctr")
	if !failure.Is(err, failure.CodeValidation) {
		t.Fatalf("error = %v, want validation failure", err)
	}
	if !strings.Contains(err.Error(), `did you mean "doctor"?`) {
		t.Errorf("error should suggest doctor, got %v", err)
	}
}
