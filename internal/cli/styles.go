// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared console styles for yuki.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set;
// FORCE_COLOR turns them back on.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// PromptStyle is used for the REPL prompts
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// CommandStyle is used for command names and confirmations
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Green

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// Role labels in /history
	userRoleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	assistantRoleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	systemRoleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule of the given width (default 40).
func RenderSeparator(width ...int) string {
	w := 40
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderLabel renders a label padded to a fixed width.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderStatus renders a status tag.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "pass":
		return SuccessStyle.Render("[OK]")
	case "fail", "error":
		return ErrorStyle.Render("[FAIL]")
	case "warn", "warning":
		return WarningStyle.Render("[WARN]")
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}
