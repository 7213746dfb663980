// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/yuki/internal/util"
)

// =============================================================================
// COMMAND TABLE
// =============================================================================

// ArgKind says what a command's argument names, for tab completion.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgSession
	ArgPath
)

// Command describes one slash command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Desc    string
	Arg     ArgKind

	// Idle commands also work at the session-name prompt.
	Idle bool
}

// Commands lists every slash command in help order.
var Commands = []Command{
	{Name: "/help", Aliases: []string{"/h", "/?"}, Usage: "/help", Desc: "Show this help", Idle: true},
	{Name: "/clear", Aliases: []string{"/c"}, Usage: "/clear, clear", Desc: "Back up and clear the conversation"},
	{Name: "/summarize", Aliases: []string{"/sum"}, Usage: "/summarize", Desc: "Replace the conversation with a summary"},
	{Name: "/load", Usage: "/load <name>", Desc: "Switch to another session", Arg: ArgSession, Idle: true},
	{Name: "/delete", Usage: "/delete [name]", Desc: "Back up and delete a session (default: this one)", Arg: ArgSession, Idle: true},
	{Name: "/read", Usage: "/read <path>", Desc: "Send a file's contents as your next message", Arg: ArgPath},
	{Name: "/sessions", Aliases: []string{"/ls"}, Usage: "/sessions", Desc: "List saved sessions", Idle: true},
	{Name: "/history", Usage: "/history", Desc: "Show the current context"},
	{Name: "/quit", Aliases: []string{"/exit", "/q"}, Usage: "/quit, /exit", Desc: "Exit", Idle: true},
}

// ErrUnknownCommand is wrapped by the error for an unrecognized /command.
var ErrUnknownCommand = errors.New("unknown command")

// LookupCommand resolves a command name or alias, case-insensitively.
func LookupCommand(name string) (Command, bool) {
	name = strings.ToLower(name)
	for _, cmd := range Commands {
		if cmd.Name == name {
			return cmd, true
		}
		for _, alias := range cmd.Aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return Command{}, false
}

// CommandNames returns every name and alias, for completion.
func CommandNames() []string {
	var names []string
	for _, cmd := range Commands {
		names = append(names, cmd.Name)
		names = append(names, cmd.Aliases...)
	}
	return names
}

// splitCommand splits "/cmd rest of line" into the lowercased command and
// the trimmed remainder.
func splitCommand(input string) (string, string) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// isClearWord matches bare "clear", accepted as /clear in a session.
func isClearWord(input string) bool {
	return strings.EqualFold(input, "clear")
}

// isExitWord matches the bare words that end the REPL.
func isExitWord(input string) bool {
	return strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit")
}

// maxEchoRunes bounds how much of a mistyped command is echoed back.
const maxEchoRunes = 32

func unknownCommand(name string) error {
	return fmt.Errorf("%w: %s (type /help for commands)", ErrUnknownCommand, util.TruncateRunes(name, maxEchoRunes))
}

func usageError(cmd Command) error {
	return fmt.Errorf("usage: %s", cmd.Usage)
}
