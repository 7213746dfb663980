// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides file and string helpers shared by the yuki packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync + rename
//   - WriteFileExclusive: Write-once file creation (O_EXCL), used for backups
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth, StringWidth: display-width aware helpers (go-runewidth)
//   - Preview: single-line preview of a message
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0644)
//	line := util.Preview(msg.Content, 60)
package util
