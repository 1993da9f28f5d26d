// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"
	"testing"
)

func TestSeverityColor(t *testing.T) {
	theme := DefaultTheme
	tests := []struct {
		severity string
		want     string
	}{
		{"PASS", string(theme.Pass)},
		{"WARN", string(theme.Warn)},
		{"FAIL", string(theme.Fail)},
		{"SKIP", string(theme.FaintText)},
	}
	for _, test := range tests {
		if got := string(theme.SeverityColor(test.severity)); got != test.want {
			t.Errorf("SeverityColor(%q) = %s, want %s", test.severity, got, test.want)
		}
	}
}

func TestBadgeKeepsText(t *testing.T) {
	for _, severity := range []string{"PASS", "WARN", "FAIL"} {
		badge := DefaultTheme.Badge(severity)
		if !strings.Contains(badge, severity) {
			t.Errorf("Badge(%q) = %q, missing severity text", severity, badge)
		}
	}
	if !strings.Contains(DefaultTheme.Badge("OK"), "[OK  ]") {
		t.Errorf("Badge pads to four columns, got %q", DefaultTheme.Badge("OK"))
	}
}
