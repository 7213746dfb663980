// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "Memory"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the roles the completion service accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single conversation entry. It is a value type: once built it
// is never modified, and a conversation is an ordered slice of them.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Validate checks the role of a message read back from disk.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	return nil
}

// IsEmpty returns true if the message carries no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// =============================================================================
// CONVERSATION HELPERS
// =============================================================================

// Append returns a new slice holding msgs followed by extra. The input slice
// is never written through, so callers can keep the old context intact when
// a turn fails.
func Append(msgs []Message, extra ...Message) []Message {
	out := make([]Message, 0, len(msgs)+len(extra))
	out = append(out, msgs...)
	return append(out, extra...)
}

// Clone returns a copy of msgs. A nil input yields an empty, non-nil slice so
// that it marshals as [] rather than null.
func Clone(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// CountByRole counts messages with the given role.
func CountByRole(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
