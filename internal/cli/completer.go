// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/yuki/internal/session"
)

// =============================================================================
// TAB COMPLETION
// =============================================================================

// stateSource reports whether the REPL is at the session-name prompt.
type stateSource interface {
	State() session.State
}

// newCompleter completes slash commands, session names after /load and
// /delete (and at the name prompt), and file paths after /read.
func newCompleter(state stateSource, sessions func() []string) liner.Completer {
	return func(line string) []string {
		if !strings.HasPrefix(line, "/") {
			if state.State() != session.StateIdle || strings.Contains(line, " ") {
				return nil
			}
			return prefixMatches(sessions(), strings.ToLower(line))
		}

		name, arg, hasArg := strings.Cut(line, " ")
		if !hasArg {
			return prefixMatches(session.CommandNames(), strings.ToLower(name))
		}

		cmd, ok := session.LookupCommand(name)
		if !ok {
			return nil
		}
		var candidates []string
		switch cmd.Arg {
		case session.ArgSession:
			candidates = prefixMatches(sessions(), strings.ToLower(strings.TrimLeft(arg, " ")))
		case session.ArgPath:
			candidates = completePath(strings.TrimLeft(arg, " "))
		}
		for i, c := range candidates {
			candidates[i] = name + " " + c
		}
		return candidates
	}
}

func prefixMatches(words []string, prefix string) []string {
	var out []string
	for _, w := range words {
		if strings.HasPrefix(w, prefix) {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// completePath lists entries matching a partially typed path. Directories
// get a trailing separator so completion can continue into them. Hidden
// entries are offered only when the typed name starts with a dot.
func completePath(typed string) []string {
	dir, base := filepath.Split(typed)
	listDir := dir
	if listDir == "" {
		listDir = "."
	}
	if strings.HasPrefix(listDir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			listDir = filepath.Join(home, strings.TrimPrefix(listDir, "~"))
		}
	}

	entries, err := os.ReadDir(listDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		candidate := dir + name
		if e.IsDir() {
			candidate += string(filepath.Separator)
		}
		out = append(out, candidate)
	}
	return out
}
