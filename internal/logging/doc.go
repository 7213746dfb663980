// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging wraps zap behind a small context-first Logger.
//
// The REPL owns the terminal, so the logger normally writes to a file
// (yuki.log under the data root) rather than stderr.
//
//	logger, err := logging.Init(logging.ZapConfig{Level: "info", File: path})
//	logger.Infof(ctx, "session %s loaded (%d messages)", name, n)
package logging
