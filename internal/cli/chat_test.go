// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/model"
	"github.com/jeranaias/yuki/internal/session"
	"github.com/jeranaias/yuki/internal/storage"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedInput returns lines in order, then io.EOF.
type scriptedInput struct {
	lines   []string
	prompts []string
}

func (s *scriptedInput) ReadInput(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// echoTransport replies with a fixed text, or fails with err when set.
type echoTransport struct {
	reply string
	err   error
	sent  int
}

func (e *echoTransport) Send(ctx context.Context, msgs []model.Message, sink completion.Sink) (string, error) {
	e.sent++
	if e.err != nil {
		return "", e.err
	}
	if sink != nil {
		sink(e.reply)
	}
	return e.reply, nil
}

type replHarness struct {
	store     *storage.Store
	transport *echoTransport
	ctrl      *session.Controller
	out       *bytes.Buffer
	errOut    *bytes.Buffer
	console   *consoleOutput
}

func newReplHarness(t *testing.T) *replHarness {
	t.Helper()
	store, err := storage.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	h := &replHarness{
		store:     store,
		transport: &echoTransport{reply: "pong"},
		out:       &bytes.Buffer{},
		errOut:    &bytes.Buffer{},
	}
	h.console = newConsoleOutput(h.out, h.errOut, nil)
	h.ctrl = session.NewController(store, h.transport, h.console, session.Options{})
	return h
}

func (h *replHarness) run(t *testing.T, lines ...string) *scriptedInput {
	t.Helper()
	input := &scriptedInput{lines: lines}
	require.NoError(t, runREPL(context.Background(), h.ctrl, input, h.console, h.errOut))
	return input
}

// =============================================================================
// REPL TESTS
// =============================================================================

func TestRunREPL_ChatThenQuit(t *testing.T) {
	h := newReplHarness(t)

	input := h.run(t, "work", "ping", "/quit")

	assert.Equal(t, session.StateClosed, h.ctrl.State())
	assert.Equal(t, 1, h.transport.sent)
	assert.Contains(t, h.out.String(), "pong")
	assert.Contains(t, h.out.String(), "work: 1 turns")
	assert.Contains(t, h.out.String(), "Goodbye!")

	require.Len(t, input.prompts, 3)
	assert.Contains(t, input.prompts[0], "session name>")
	assert.Contains(t, input.prompts[1], "work>")

	msgs, ok := h.store.ReadHistory("work")
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestRunREPL_EOFCloses(t *testing.T) {
	h := newReplHarness(t)

	h.run(t, "work")

	assert.True(t, h.ctrl.Closed())
	assert.Contains(t, h.out.String(), "Goodbye!")
	assert.NotContains(t, h.out.String(), "turns", "no summary without turns")
}

func TestRunREPL_ErrorsDoNotEndLoop(t *testing.T) {
	h := newReplHarness(t)
	h.transport.err = &completion.Error{Kind: completion.KindNetwork, Message: "service unreachable"}

	h.run(t, "/clear", "work", "hello", "/bogus", "exit")

	assert.True(t, h.ctrl.Closed())
	errText := h.errOut.String()
	assert.Contains(t, errText, "no active session")
	assert.Contains(t, errText, "service unreachable")
	assert.Contains(t, errText, "server running")
	assert.Contains(t, errText, "unknown command")
	assert.Empty(t, h.ctrl.Context(), "failed turn leaves the context empty")
}

func TestRunREPL_CanceledTurn(t *testing.T) {
	h := newReplHarness(t)
	h.transport.err = &completion.Error{Kind: completion.KindNetwork, Message: "canceled", Cause: context.Canceled}

	h.run(t, "work", "hello")

	assert.Contains(t, h.errOut.String(), "[Cancelled]")
	assert.NotContains(t, h.errOut.String(), "[Error]")
}

func TestRunREPL_ContextCancelledEndsLoop(t *testing.T) {
	h := newReplHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- runREPL(ctx, h.ctrl, &scriptedInput{lines: []string{"work"}}, h.console, h.errOut)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runREPL did not return after cancellation")
	}
	assert.True(t, h.ctrl.Closed())
}

// =============================================================================
// TURN CANCELER TESTS
// =============================================================================

func TestTurnCanceler(t *testing.T) {
	var tc turnCanceler

	assert.False(t, tc.interrupt(), "no turn running")

	ctx := tc.begin(context.Background())
	assert.True(t, tc.interrupt())
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
	assert.False(t, tc.interrupt(), "second interrupt has nothing to cancel")

	ctx = tc.begin(context.Background())
	tc.end()
	assert.Error(t, ctx.Err(), "end releases the turn context")
	assert.False(t, tc.interrupt())
}

func TestPromptFor(t *testing.T) {
	h := newReplHarness(t)
	assert.Contains(t, promptFor(h.ctrl), "session name> ")

	require.NoError(t, h.ctrl.Open("notes"))
	assert.Contains(t, promptFor(h.ctrl), "notes> ")
}
