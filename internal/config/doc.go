// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for yuki.
//
// # Precedence
//
// Flags override environment variables, which override the TOML file,
// which overrides built-in defaults.
//
// # Configuration File
//
//	[server]
//	url = "http://127.0.0.1:8080/v1/chat/completions"
//	model = "local"
//	temperature = 0.6
//	max_tokens = 256
//
//	[chat]
//	markdown = true
//
// # Hot Reload
//
// Reloader watches the file with fsnotify and swaps the active *Config
// atomically. The transport reads Current at the start of each request, so
// a new model or endpoint takes effect on the next turn.
//
// There is no package-level global: Load builds one *Config at startup and
// callers pass it (or the Reloader) explicitly.
package config
