// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/yuki/internal/model"
)

// =============================================================================
// PROMPTS
// =============================================================================

// SummarizePrompt is sent as a trailing user message on /summarize. It is
// never added to the conversation.
const SummarizePrompt = "Summarize our conversation so far as concise bullet points. " +
	"Keep every fact, decision and open question needed to continue it later; drop greetings and small talk. " +
	"Reply with the bullet points only."

// MemoryPreamble heads the memory block so the model reads it as background
// rather than as something the user just said.
const MemoryPreamble = "Summary of our earlier conversation:\n\n"

// ReadPreamble heads a message built by /read.
const ReadPreamble = "I am sharing the contents of a file with you. " +
	"Read it carefully and use it as context for the rest of our conversation. " +
	"Briefly acknowledge what it contains.\n"

// NewMemoryMessage wraps a summary as the session's memory block.
func NewMemoryMessage(summary string) model.Message {
	return model.NewSystemMessage(MemoryPreamble + strings.TrimSpace(summary))
}

// =============================================================================
// FILE READING
// =============================================================================

// DefaultMaxReadBytes caps /read when no limit is configured.
const DefaultMaxReadBytes = 50 * 1024

// ErrNotText is returned by /read for files that are not valid UTF-8.
var ErrNotText = errors.New("not a text file")

// readFileForContext reads a file and frames it for inclusion in a prompt.
// Files larger than maxBytes are rejected.
func readFileForContext(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}
	path = expandHome(path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxBytes {
		return "", fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	// The file may grow between Stat and Read.
	content, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(content)) > maxBytes {
		return "", fmt.Errorf("file too large: more than %d bytes", maxBytes)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: %w", path, ErrNotText)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("\n--- File: %s ---\n", filepath.Base(path)))
	builder.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		builder.WriteString("\n")
	}
	builder.WriteString("--- End of file ---\n")
	return builder.String(), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
