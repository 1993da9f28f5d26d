// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diagnostics

import (
	"encoding/json"
	"sort"
)

// Verdict is the overall outcome of a report.
type Verdict string

const (
	Pass Verdict = "PASS"
	Warn Verdict = "WARN"
	Fail Verdict = "FAIL"
)

// ExitCode maps the verdict to a process exit status.
func (v Verdict) ExitCode() int {
	switch v {
	case Fail:
		return 2
	case Warn:
		return 1
	default:
		return 0
	}
}

// Report is the result of one diagnostics run.
type Report struct {
	Info     map[string]any
	Warnings []string
	Fatals   []string
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Info: make(map[string]any)}
}

// Warn records a warning.
func (r *Report) Warn(message string) { r.Warnings = append(r.Warnings, message) }

// Fatal records a fatal finding.
func (r *Report) Fatal(message string) { r.Fatals = append(r.Fatals, message) }

// Verdict derives the verdict from the warning and fatal counts.
func (r *Report) Verdict() Verdict {
	switch {
	case len(r.Fatals) > 0:
		return Fail
	case len(r.Warnings) > 0:
		return Warn
	default:
		return Pass
	}
}

// ExitCode is Verdict().ExitCode().
func (r *Report) ExitCode() int { return r.Verdict().ExitCode() }

// InfoKeys returns the info keys in sorted order, for stable rendering.
func (r *Report) InfoKeys() []string {
	keys := make([]string, 0, len(r.Info))
	for key := range r.Info {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type reportJSON struct {
	Verdict  Verdict        `json:"verdict"`
	ExitCode int            `json:"exit_code"`
	Info     map[string]any `json:"info"`
	Warnings []string       `json:"warnings"`
	Fatals   []string       `json:"fatals"`
}

// MarshalJSON includes the derived verdict and exit code. Empty lists
// are written as [] rather than null.
func (r *Report) MarshalJSON() ([]byte, error) {
	document := reportJSON{
		Verdict:  r.Verdict(),
		ExitCode: r.ExitCode(),
		Info:     r.Info,
		Warnings: r.Warnings,
		Fatals:   r.Fatals,
	}
	if document.Info == nil {
		document.Info = map[string]any{}
	}
	if document.Warnings == nil {
		document.Warnings = []string{}
	}
	if document.Fatals == nil {
		document.Fatals = []string{}
	}
	return json.Marshal(document)
}
