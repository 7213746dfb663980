// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders replies and /history for the terminal. A nil
// renderer, or one whose glamour setup failed, passes text through.
type markdownRenderer struct {
	r *glamour.TermRenderer
}

// newMarkdownRenderer builds a renderer wrapped to width. Without colors the
// "notty" style is used so the output carries no escape sequences.
func newMarkdownRenderer(width int, colors bool) *markdownRenderer {
	if width > MaxRenderWidth {
		width = MaxRenderWidth
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if colors {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{r: r}
}

// Render returns the rendered content, or the original content if rendering
// fails.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.r == nil {
		return content
	}
	rendered, err := m.r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}
