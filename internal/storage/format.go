// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"

	"github.com/jeranaias/yuki/internal/model"
	"github.com/jeranaias/yuki/internal/util"
)

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList formats sessions as a plain-text table.
func FormatSessionList(sessions []SessionInfo) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString(formatPadded("Name", 20) + " " + formatPadded("Updated", 16) + " " + formatPadded("Msgs", 5) + " Preview\n")
	sb.WriteString(strings.Repeat("-", 72) + "\n")

	for _, s := range sessions {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format("2006-01-02 15:04")
		}
		count := fmt.Sprintf("%d", s.Messages)
		if s.HasMemory {
			count += "*"
		}
		sb.WriteString(formatPadded(util.TruncateWidth(s.Name, 20), 20) + " " +
			formatPadded(updated, 16) + " " +
			formatPadded(count, 5) + " " +
			util.TruncateWidth(s.Preview, 28) + "\n")
	}
	sb.WriteString("(* = has memory summary)\n")
	return sb.String()
}

// formatPadded pads a string to the specified display width with spaces.
func formatPadded(s string, width int) string {
	w := util.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// =============================================================================
// MARKDOWN EXPORT
// =============================================================================

// FormatMarkdown renders a context as Markdown with one section per message.
func FormatMarkdown(name string, msgs []model.Message) string {
	var sb strings.Builder
	sb.WriteString("# Session " + name + "\n\n")
	if len(msgs) == 0 {
		sb.WriteString("_No messages._\n")
		return sb.String()
	}
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		sb.WriteString("**" + msg.Role.DisplayName() + "**\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
