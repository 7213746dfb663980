// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A conversation is an ordered []Message; the order is causal and is
// preserved everywhere: on the wire, on disk, and in memory.
//
// # Key Types
//
//   - Message: role + content, the same shape the completion API expects
//   - Role: user, assistant, or system
//
// # Usage
//
//	msgs := model.Append(history, model.NewUserMessage("Hello!"))
package model
