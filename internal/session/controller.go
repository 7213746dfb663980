// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/logging"
	"github.com/jeranaias/yuki/internal/model"
	"github.com/jeranaias/yuki/internal/storage"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Transport sends a context and streams the reply. *completion.Client
// implements it.
type Transport interface {
	Send(ctx context.Context, messages []model.Message, sink completion.Sink) (string, error)
}

// Store persists sessions. *storage.Store implements it.
type Store interface {
	Load(name string) storage.Loaded
	Sessions() []storage.SessionInfo
	PersistHistory(name string, msgs []model.Message) error
	PersistMemory(name string, mem *model.Message) error
	Backup(name string) (string, error)
	Delete(name string) error
}

// Output receives everything the controller shows the user.
type Output interface {
	// Token is called for each streamed reply fragment.
	Token(s string)
	// Reply is called once a reply has streamed completely.
	Reply(text string)
	Info(msg string)
	// Warn reports a failure that did not stop the operation, such as a
	// history write that failed after a successful turn.
	Warn(err error)
	SessionOpened(name string, loaded storage.Loaded)
	Sessions(infos []storage.SessionInfo)
	History(name string, msgs []model.Message)
	Help(cmds []Command)
}

// =============================================================================
// STATE
// =============================================================================

// State is the controller's position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrNoSession          = errors.New("no active session")
	ErrClosed             = errors.New("session closed")
	ErrNothingToSummarize = errors.New("nothing to summarize")
	ErrEmptySummary       = errors.New("summary was empty")
)

// Options configures a Controller.
type Options struct {
	// MaxReadBytes caps /read. Zero means DefaultMaxReadBytes.
	MaxReadBytes int64
	Logger       logging.Logger
}

// Controller is the REPL state machine. The context slice is replaced, never
// written through, so a failed turn leaves it exactly as it was.
type Controller struct {
	store     Store
	transport Transport
	out       Output
	logger    logging.Logger
	maxRead   int64

	state   State
	name    string
	context []model.Message

	// memoryHead is set while the memory file, not the history file, holds
	// the head of the context. The next successful turn folds it into
	// history.
	memoryHead bool

	openedAt time.Time
	turns    int
}

// NewController creates a controller in the Idle state.
func NewController(store Store, transport Transport, out Output, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		store:     store,
		transport: transport,
		out:       out,
		logger:    logger.Named("session"),
		maxRead:   opts.MaxReadBytes,
		state:     StateIdle,
		context:   []model.Message{},
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Closed reports whether the controller has reached its terminal state.
func (c *Controller) Closed() bool { return c.state == StateClosed }

// Session returns the active session name, or "" when idle.
func (c *Controller) Session() string { return c.name }

// Context returns a copy of the active context.
func (c *Controller) Context() []model.Message { return model.Clone(c.context) }

// Turns returns the number of successful chat turns since the session opened.
func (c *Controller) Turns() int { return c.turns }

// Duration returns how long the active session has been open.
func (c *Controller) Duration() time.Duration {
	if c.openedAt.IsZero() {
		return 0
	}
	return time.Since(c.openedAt)
}

// Close moves to Closed. Everything is already persisted.
func (c *Controller) Close() {
	if c.state != StateClosed {
		c.logger.Debugf(context.Background(), "closing (session=%q turns=%d)", c.name, c.turns)
	}
	c.state = StateClosed
}

// =============================================================================
// INPUT DISPATCH
// =============================================================================

// Handle processes one line of input. Empty input is a no-op. Errors are for
// the user; the controller is still usable afterwards unless Closed.
func (c *Controller) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return c.handleIdle(ctx, input)
	default:
		return c.handleActive(ctx, input)
	}
}

func (c *Controller) handleIdle(ctx context.Context, input string) error {
	if isExitWord(input) {
		c.Close()
		return nil
	}

	// "<name> /delete" deletes without opening.
	fields := strings.Fields(input)
	if len(fields) >= 2 && strings.EqualFold(fields[len(fields)-1], "/delete") {
		return c.deleteSession(ctx, strings.Join(fields[:len(fields)-1], " "))
	}

	if !strings.HasPrefix(input, "/") {
		return c.Open(input)
	}

	name, arg := splitCommand(input)
	cmd, ok := LookupCommand(name)
	if !ok || !cmd.Idle {
		return fmt.Errorf("%s: %w (enter a session name first)", name, ErrNoSession)
	}

	switch cmd.Name {
	case "/quit":
		c.Close()
	case "/help":
		c.out.Help(Commands)
	case "/sessions":
		c.out.Sessions(c.store.Sessions())
	case "/load":
		if arg == "" {
			return usageError(cmd)
		}
		return c.Open(arg)
	case "/delete":
		if arg == "" {
			return usageError(cmd)
		}
		return c.deleteSession(ctx, arg)
	}
	return nil
}

func (c *Controller) handleActive(ctx context.Context, input string) error {
	if isExitWord(input) {
		c.Close()
		return nil
	}
	if isClearWord(input) {
		return c.clear(ctx)
	}
	if !strings.HasPrefix(input, "/") {
		return c.chat(ctx, model.NewUserMessage(input))
	}

	name, arg := splitCommand(input)
	if name == "/" {
		c.out.Help(Commands)
		return nil
	}
	cmd, ok := LookupCommand(name)
	if !ok {
		return unknownCommand(name)
	}

	switch cmd.Name {
	case "/quit":
		c.Close()
	case "/help":
		c.out.Help(Commands)
	case "/clear":
		return c.clear(ctx)
	case "/summarize":
		return c.summarize(ctx)
	case "/load":
		if arg == "" {
			return usageError(cmd)
		}
		return c.Open(arg)
	case "/delete":
		if arg == "" {
			arg = c.name
		}
		return c.deleteSession(ctx, arg)
	case "/read":
		if arg == "" {
			return usageError(cmd)
		}
		return c.read(ctx, arg)
	case "/sessions":
		c.out.Sessions(c.store.Sessions())
	case "/history":
		c.out.History(c.name, c.Context())
	}
	return nil
}

// =============================================================================
// SESSION SWITCHING
// =============================================================================

// Open makes name the active session and loads its context. Any previous
// session is simply dropped; its turns are already persisted.
func (c *Controller) Open(name string) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	canon, err := storage.CanonicalName(name)
	if err != nil {
		return fmt.Errorf("invalid session name %q: %w", name, err)
	}

	loaded := c.store.Load(canon)
	c.state = StateActive
	c.name = canon
	c.context = model.Clone(loaded.Messages)
	c.memoryHead = loaded.Source == storage.SourceMemory
	c.openedAt = time.Now()
	c.turns = 0

	c.logger.Infof(context.Background(), "opened session %s (%d messages from %s)", canon, len(c.context), loaded.Source)
	c.out.SessionOpened(canon, loaded)
	return nil
}

func (c *Controller) deleteSession(ctx context.Context, name string) error {
	canon, err := storage.CanonicalName(name)
	if err != nil {
		return fmt.Errorf("invalid session name %q: %w", name, err)
	}

	active := c.state == StateActive && canon == c.name
	if active {
		err = c.backupActive(ctx)
	} else {
		err = c.backup(ctx, canon)
	}
	if err != nil {
		return fmt.Errorf("delete aborted, backup failed: %w", err)
	}

	if err := c.store.Delete(canon); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	c.out.Info(fmt.Sprintf("Deleted session %s", canon))

	if active {
		c.state = StateIdle
		c.name = ""
		c.context = []model.Message{}
		c.memoryHead = false
	}
	return nil
}

// =============================================================================
// CHAT TURNS
// =============================================================================

// chat sends the context plus msg. Only a complete reply changes state.
func (c *Controller) chat(ctx context.Context, msg model.Message) error {
	turn := model.Append(c.context, msg)

	reply, err := c.transport.Send(ctx, turn, c.out.Token)
	if err != nil {
		c.logger.Warnf(ctx, "turn failed in %s: %v", c.name, err)
		return err
	}
	c.out.Reply(reply)

	c.context = model.Append(turn, model.NewAssistantMessage(reply))
	c.turns++
	c.persistContext(ctx)
	return nil
}

// persistContext writes the context as history. When the memory file held
// the head of the context it is cleared once the history write succeeds.
func (c *Controller) persistContext(ctx context.Context) {
	if err := c.store.PersistHistory(c.name, c.context); err != nil {
		c.warn(ctx, err)
		return
	}
	if !c.memoryHead {
		return
	}
	if err := c.store.PersistMemory(c.name, nil); err != nil {
		c.warn(ctx, err)
		return
	}
	c.memoryHead = false
	c.logger.Debugf(ctx, "folded memory of %s into history", c.name)
}

func (c *Controller) read(ctx context.Context, path string) error {
	content, err := readFileForContext(path, c.maxRead)
	if err != nil {
		return err
	}
	c.out.Info(fmt.Sprintf("Read %s (%d bytes)", path, len(content)))
	return c.chat(ctx, model.NewUserMessage(ReadPreamble+content))
}

// =============================================================================
// DESTRUCTIVE COMMANDS
// =============================================================================

func (c *Controller) clear(ctx context.Context) error {
	if err := c.backupActive(ctx); err != nil {
		return fmt.Errorf("clear aborted, backup failed: %w", err)
	}

	c.context = []model.Message{}
	c.memoryHead = false
	if err := c.store.PersistHistory(c.name, c.context); err != nil {
		c.warn(ctx, err)
	}
	if err := c.store.PersistMemory(c.name, nil); err != nil {
		c.warn(ctx, err)
	}
	c.out.Info("Conversation cleared")
	return nil
}

// summarize replaces the context with a single memory message built from
// the model's summary of it. Every summary fully replaces the last.
func (c *Controller) summarize(ctx context.Context) error {
	if len(c.context) == 0 {
		return ErrNothingToSummarize
	}
	if err := c.backupActive(ctx); err != nil {
		return fmt.Errorf("summarize aborted, backup failed: %w", err)
	}

	req := model.Append(c.context, model.NewUserMessage(SummarizePrompt))
	reply, err := c.transport.Send(ctx, req, c.out.Token)
	if err != nil {
		c.logger.Warnf(ctx, "summarize failed in %s: %v", c.name, err)
		return err
	}
	c.out.Reply(reply)
	if strings.TrimSpace(reply) == "" {
		return ErrEmptySummary
	}

	replaced := len(c.context)
	mem := NewMemoryMessage(reply)
	c.context = []model.Message{mem}
	c.memoryHead = true

	// History is only purged once the memory is safely on disk.
	if err := c.store.PersistMemory(c.name, &mem); err != nil {
		c.warn(ctx, err)
		return nil
	}
	if err := c.store.PersistHistory(c.name, []model.Message{}); err != nil {
		c.warn(ctx, err)
	}

	c.logger.Infof(ctx, "summarized %s: %d messages replaced by memory", c.name, replaced)
	c.out.Info(fmt.Sprintf("Summarized %d messages into memory", replaced))
	return nil
}

// backupActive backs up the active session. While the memory file holds the
// head of the context, the context is first written to history so the
// backup captures it.
func (c *Controller) backupActive(ctx context.Context) error {
	if c.memoryHead && len(c.context) > 0 {
		if err := c.store.PersistHistory(c.name, c.context); err != nil {
			return err
		}
	}
	return c.backup(ctx, c.name)
}

func (c *Controller) backup(ctx context.Context, name string) error {
	path, err := c.store.Backup(name)
	if err != nil {
		return err
	}
	if path != "" {
		c.logger.Infof(ctx, "backup of %s written to %s", name, path)
		c.out.Info(fmt.Sprintf("Backed up to %s", path))
	}
	return nil
}

func (c *Controller) warn(ctx context.Context, err error) {
	c.logger.Errorf(ctx, "%v", err)
	c.out.Warn(err)
}
