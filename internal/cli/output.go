// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/yuki/internal/model"
	"github.com/jeranaias/yuki/internal/session"
	"github.com/jeranaias/yuki/internal/storage"
	"github.com/jeranaias/yuki/internal/util"
)

// =============================================================================
// CONSOLE OUTPUT
// =============================================================================

// consoleOutput prints controller events to the terminal. Reply tokens are
// always printed as they arrive. The markdown renderer, when set, is used for
// /history and the memory block shown on load.
type consoleOutput struct {
	out      io.Writer
	errOut   io.Writer
	markdown *markdownRenderer
	quiet    bool

	// streamed is set once a token of the current reply has been printed.
	streamed bool
}

var _ session.Output = (*consoleOutput)(nil)

func newConsoleOutput(out, errOut io.Writer, markdown *markdownRenderer) *consoleOutput {
	return &consoleOutput{out: out, errOut: errOut, markdown: markdown}
}

func (o *consoleOutput) Token(s string) {
	if !o.streamed {
		fmt.Fprintln(o.out)
		o.streamed = true
	}
	fmt.Fprint(o.out, s)
}

func (o *consoleOutput) Reply(text string) {
	if !o.streamed {
		// Empty replies still get their spacing.
		fmt.Fprintln(o.out)
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out)
	o.streamed = false
}

// endTurn closes off a reply that failed mid-stream.
func (o *consoleOutput) endTurn() {
	if o.streamed {
		fmt.Fprintln(o.out)
		o.streamed = false
	}
}

func (o *consoleOutput) Info(msg string) {
	if o.quiet {
		return
	}
	fmt.Fprintln(o.out, CommandStyle.Render("["+msg+"]"))
}

func (o *consoleOutput) Warn(err error) {
	fmt.Fprintf(o.errOut, "%s %v\n", WarningStyle.Render("[Warning]"), err)
}

func (o *consoleOutput) SessionOpened(name string, loaded storage.Loaded) {
	var banner string
	switch loaded.Source {
	case storage.SourceMemory:
		banner = "--- Loaded memory summary ---"
	case storage.SourceHistory:
		banner = fmt.Sprintf("--- Loaded history (%d messages) ---", len(loaded.Messages))
	default:
		banner = "--- New session ---"
	}
	fmt.Fprintf(o.out, "%s %s\n", TitleStyle.Render("Session "+name), DimStyle.Render(banner))
	if loaded.Source == storage.SourceMemory && len(loaded.Messages) == 1 && o.markdown != nil {
		fmt.Fprint(o.out, o.markdown.Render(strings.TrimPrefix(loaded.Messages[0].Content, session.MemoryPreamble)))
	}
	fmt.Fprintln(o.out)
}

func (o *consoleOutput) Sessions(infos []storage.SessionInfo) {
	fmt.Fprintln(o.out)
	fmt.Fprint(o.out, storage.FormatSessionList(infos))
	if len(infos) == 0 {
		fmt.Fprintln(o.out)
	}
	fmt.Fprintln(o.out)
}

func (o *consoleOutput) History(name string, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(o.out, DimStyle.Render("[No messages yet]"))
		return
	}
	if o.markdown != nil {
		fmt.Fprint(o.out, o.markdown.Render(storage.FormatMarkdown(name, msgs)))
		return
	}

	fmt.Fprintln(o.out)
	fmt.Fprintf(o.out, "%s %s\n", TitleStyle.Render("Conversation History"),
		DimStyle.Render(fmt.Sprintf("(%d user, %d assistant)",
			model.CountByRole(msgs, model.RoleUser),
			model.CountByRole(msgs, model.RoleAssistant))))
	fmt.Fprintln(o.out, RenderSeparator(25))
	for i, msg := range msgs {
		fmt.Fprintf(o.out, "  %d. %s: %s\n", i+1, roleLabel(msg.Role), util.Preview(msg.Content, 100))
	}
	fmt.Fprintln(o.out)
}

func (o *consoleOutput) Help(cmds []session.Command) {
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(o.out, RenderSeparator(20))
	for _, c := range cmds {
		fmt.Fprintf(o.out, "  %s  %s\n",
			CommandStyle.Render(fmt.Sprintf("%-16s", c.Usage)),
			DimStyle.Render(c.Desc))
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, DimStyle.Render("At the session prompt: <name> opens a session, <name> /delete removes one."))
	fmt.Fprintln(o.out, DimStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(o.out)
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return userRoleStyle.Render(r.DisplayName())
	case model.RoleAssistant:
		return assistantRoleStyle.Render(r.DisplayName())
	case model.RoleSystem:
		return systemRoleStyle.Render(r.DisplayName())
	default:
		return r.String()
	}
}
