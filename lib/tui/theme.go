// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for periogt's terminal output. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Section headings.
	HeaderForeground lipgloss.Color

	// Finding severities.
	Pass lipgloss.Color
	Warn lipgloss.Color
	Fail lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),

	Pass: lipgloss.Color("114"), // green
	Warn: lipgloss.Color("220"), // amber
	Fail: lipgloss.Color("196"), // red
}

// SeverityColor returns the color for PASS, WARN, or FAIL. Anything
// else is FaintText.
func (theme Theme) SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "PASS":
		return theme.Pass
	case "WARN":
		return theme.Warn
	case "FAIL":
		return theme.Fail
	default:
		return theme.FaintText
	}
}

// Badge renders severity as a bold, colored, fixed-width "[WARN]" tag.
func (theme Theme) Badge(severity string) string {
	return lipgloss.NewStyle().
		Foreground(theme.SeverityColor(severity)).
		Bold(true).
		Render(fmt.Sprintf("[%-4s]", severity))
}

// Header renders a section heading.
func (theme Theme) Header(text string) string {
	return lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true).Render(text)
}

// Faint renders secondary text such as info keys.
func (theme Theme) Faint(text string) string {
	return lipgloss.NewStyle().Foreground(theme.FaintText).Render(text)
}
