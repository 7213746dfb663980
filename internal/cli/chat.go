// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for yuki.
//
// Usage:
//   yuki                         Prompt for a session name, then chat
//   yuki --session work          Open "work" directly
//   yuki --model qwen2.5 --url http://127.0.0.1:1234/v1/chat/completions
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /clear              Back up and clear the conversation
//   /summarize          Replace the conversation with a summary
//   /load <name>        Switch session
//   /delete [name]      Back up and delete a session
//   /read <path>        Send a file as the next message
//   /sessions           List sessions
//   /history            Show the current context
//   /quit, /exit        Exit
//   Ctrl+C              Cancel current reply
//   Ctrl+D              Exit

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v3"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/config"
	"github.com/jeranaias/yuki/internal/session"
)

// pingTimeout bounds the startup reachability check.
const pingTimeout = 3 * time.Second

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history, line editing and tab completion.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI. An empty historyFile disables persistent
// input history.
func NewChatCLI(historyFile string, completer liner.Completer) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	if completer != nil {
		line.SetCompleter(completer)
	}

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

type promptResult struct {
	line string
	err  error
}

// ReadInput reads a line of input with the given prompt. It returns
// ctx.Err() if ctx ends first; the pending prompt is then abandoned.
func (c *ChatCLI) ReadInput(ctx context.Context, prompt string) (string, error) {
	ch := make(chan promptResult, 1)
	go func() {
		line, err := c.line.Prompt(prompt)
		ch <- promptResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.line) != "" {
			c.line.AppendHistory(r.line)
		}
		return r.line, nil
	}
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// TURN CANCELLATION
// =============================================================================

// turnCanceler lets the signal goroutine cancel the turn in flight.
type turnCanceler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (t *turnCanceler) begin(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	return ctx
}

func (t *turnCanceler) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// interrupt cancels the running turn and reports whether there was one.
func (t *turnCanceler) interrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	return true
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// runChat is the root command's action.
func runChat(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.reloader.Watch(ctx); err != nil {
		a.logger.Warnf(ctx, "config hot reload disabled: %v", err)
	}

	w, ew := stdout(cmd), stderr(cmd)

	var md *markdownRenderer
	if a.cfg.Chat.Markdown && IsStdoutTTY() {
		md = newMarkdownRenderer(GetTerminalWidth()-2, ColorsEnabled())
	}
	out := newConsoleOutput(w, ew, md)
	ctrl := session.NewController(a.store, a.client, out, session.Options{
		MaxReadBytes: a.cfg.Chat.MaxReadBytes,
		Logger:       a.logger,
	})

	historyFile := ""
	if a.cfg.Chat.InputHistory {
		historyFile = a.cfg.InputHistoryPath()
	}
	input := NewChatCLI(historyFile, newCompleter(ctrl, a.store.ListSessions))
	defer input.Close()

	printWelcome(w, a.cfg)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	if err := a.client.Ping(pingCtx); err != nil {
		out.Warn(fmt.Errorf("server not reachable at %s: %w", a.cfg.Server.URL, err))
	}
	cancel()

	if name := cmd.String("session"); name != "" {
		if err := ctrl.Open(name); err != nil {
			return err
		}
	}

	return runREPL(ctx, ctrl, input, out, ew)
}

// lineReader is the part of ChatCLI the REPL needs.
type lineReader interface {
	ReadInput(ctx context.Context, prompt string) (string, error)
}

// runREPL reads lines until the controller closes, input ends or ctx is
// cancelled. Ctrl+C cancels the turn in flight; with no turn running it
// ends the REPL.
func runREPL(ctx context.Context, ctrl *session.Controller, input lineReader, out *consoleOutput, ew io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	turns := &turnCanceler{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if !turns.interrupt() {
					cancel()
				}
			}
		}
	}()

	for !ctrl.Closed() {
		line, err := input.ReadInput(ctx, promptFor(ctrl))
		if err != nil {
			// EOF (Ctrl+D), Ctrl+C at the prompt, or shutdown.
			fmt.Fprintln(out.out)
			ctrl.Close()
			break
		}

		turnCtx := turns.begin(ctx)
		err = ctrl.Handle(turnCtx, line)
		turns.end()
		if err == nil {
			continue
		}

		out.endTurn()
		if completion.IsCanceled(err) {
			fmt.Fprintln(ew, WarningStyle.Render("[Cancelled]"))
			continue
		}
		DisplayError(ew, err)
	}

	printExitSummary(out.out, ctrl)
	return nil
}

func promptFor(ctrl *session.Controller) string {
	if ctrl.State() == session.StateActive {
		return PromptStyle.Render(ctrl.Session() + "> ")
	}
	return PromptStyle.Render("session name> ")
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("yuki interactive chat"))
	fmt.Fprintln(w, RenderSeparator(30))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Model:"), CommandStyle.Render(cfg.Server.Model))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Server:"), ValueStyle.Render(cfg.Server.URL))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Storage:"), ValueStyle.Render(cfg.Storage.Root))
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Enter a session name to start. Commands: /help, /sessions, /quit"))
	fmt.Fprintln(w)
}

// printExitSummary prints a one-line session summary and says goodbye.
func printExitSummary(w io.Writer, ctrl *session.Controller) {
	if ctrl.Turns() > 0 && ctrl.Session() != "" {
		fmt.Fprintf(w, "%s %s: %d turns in %s\n",
			DimStyle.Render("[Session]"),
			ctrl.Session(),
			ctrl.Turns(),
			ctrl.Duration().Round(time.Second))
	}
	fmt.Fprintln(w, DimStyle.Render("Goodbye!"))
}
