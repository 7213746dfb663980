// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"time"

	"github.com/jeranaias/yuki/internal/config"
	"github.com/jeranaias/yuki/internal/model"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds everything one request needs. The client reads a fresh
// Settings value at the start of every Send, so a config reload applies to
// the next turn.
type Settings struct {
	// URL is the chat completions endpoint.
	URL string

	// Model is sent verbatim.
	Model string

	// Temperature is omitted from the request when nil.
	Temperature *float64

	// MaxTokens is omitted from the request when zero.
	MaxTokens int

	// ConnectTimeout bounds dialing and the wait for response headers.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the whole streamed reply.
	RequestTimeout time.Duration

	// MaxLineSize bounds a single buffered stream line.
	MaxLineSize int
}

// Default timeouts when Settings leaves them zero.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 300 * time.Second
)

// SettingsFromConfig extracts request settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		URL:            cfg.Server.URL,
		Model:          cfg.Server.Model,
		Temperature:    cfg.Server.Temperature,
		MaxTokens:      cfg.Server.MaxTokens,
		ConnectTimeout: cfg.ConnectTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MaxLineSize <= 0 {
		s.MaxLineSize = DefaultMaxLineSize
	}
	return s
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}
