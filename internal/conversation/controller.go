// Package conversation owns the in-memory chat state and sequences sends
// against the webhook. Every history change is mirrored to the store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"webhook-chat/internal/history"
	"webhook-chat/internal/logger"
)

var (
	ErrEmptyInput     = errors.New("message is empty")
	ErrBusy           = errors.New("a message is already being sent")
	ErrConfigRequired = errors.New("webhook URL is not configured")
)

// errorReplyFormat is the assistant message used when an exchange fails.
const errorReplyFormat = "Operational Link severed. Network diagnostics required. [%s]"

// Sender performs one request/reply exchange. *webhook.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message string, cfg history.ChatConfig) (string, error)
}

// State is a copy of the controller state at one point in time.
type State struct {
	Messages []history.Message
	Sending  bool
	Config   history.ChatConfig
	Draft    string
}

type Option func(*Controller)

// WithClock overrides time.Now for message ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller holds one conversation. Send is serialized: while an exchange
// is in flight further sends are rejected, never queued.
type Controller struct {
	mu           sync.Mutex
	history      *history.Manager
	sender       Sender
	now          func() time.Time
	messages     []history.Message
	config       history.ChatConfig
	freshInstall bool
	sending      bool
	draft        string

	listeners    map[int]Listener
	nextListener int
}

// New loads config and history through h. A missing config gets a new
// session id, which is persisted right away.
func New(h *history.Manager, sender Sender, opts ...Option) *Controller {
	c := &Controller{
		history:   h,
		sender:    sender,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg, ok := h.LoadConfig(); ok {
		c.config = cfg
	} else {
		c.freshInstall = true
		c.config = history.ChatConfig{SessionID: history.NewSessionID()}
		if err := h.SaveConfig(c.config); err != nil {
			logger.ErrorCF("conversation", "Failed to persist new config",
				map[string]interface{}{"error": err.Error()})
		}
		logger.InfoCF("conversation", "Created session",
			map[string]interface{}{"session_id": c.config.SessionID})
	}

	if msgs, ok := h.LoadMessages(); ok {
		c.messages = msgs
	} else {
		c.messages = []history.Message{}
	}

	return c
}

// Send appends a user message for text and starts the webhook exchange.
// It returns ErrEmptyInput, ErrBusy or ErrConfigRequired without touching
// the conversation. The exchange cannot be cancelled.
func (c *Controller) Send(text string) (*Exchange, error) {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if trimmed == "" {
		c.mu.Unlock()
		return nil, ErrEmptyInput
	}
	if c.sending {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if !c.config.Configured() {
		state := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(Event{Kind: EventConfigRequired, State: state})
		return nil, ErrConfigRequired
	}

	userMsg := c.appendLocked(history.RoleUser, trimmed)
	c.sending = true
	c.draft = ""
	cfg := c.config
	state := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessagesChanged, State: state})
	c.emit(Event{Kind: EventLoadingChanged, State: state})

	ex := &Exchange{Request: userMsg, done: make(chan struct{})}
	go c.exchange(ex, text, cfg)
	return ex, nil
}

func (c *Controller) exchange(ex *Exchange, text string, cfg history.ChatConfig) {
	reply, err := c.sender.Send(context.Background(), text, cfg)

	content := reply
	if err != nil {
		content = fmt.Sprintf(errorReplyFormat, err.Error())
	}

	c.mu.Lock()
	msg := c.appendLocked(history.RoleAssistant, content)
	c.sending = false
	state := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessagesChanged, State: state})
	c.emit(Event{Kind: EventLoadingChanged, State: state})

	ex.reply = msg
	ex.err = err
	close(ex.done)
}

// UpdateConfig replaces the config and persists it. An empty SessionID
// keeps the current one.
func (c *Controller) UpdateConfig(cfg history.ChatConfig) error {
	c.mu.Lock()
	if cfg.SessionID == "" {
		cfg.SessionID = c.config.SessionID
	}
	c.config = cfg
	c.freshInstall = false
	err := c.history.SaveConfig(cfg)
	state := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventConfigChanged, State: state})
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ClearConversation empties the history in memory and in the store. It is
// refused with ErrBusy while an exchange is in flight so the pending reply
// does not land in an empty conversation.
func (c *Controller) ClearConversation() error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = []history.Message{}
	err := c.history.ClearMessages()
	state := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessagesChanged, State: state})
	if err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SetDraft stores the pending input. A successful Send clears it.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// NeedsConfiguration reports whether the user should be asked for a webhook URL.
func (c *Controller) NeedsConfiguration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshInstall || !c.config.Configured()
}

// appendLocked adds a message and persists the history. Persistence
// failures are logged; the conversation continues in memory.
func (c *Controller) appendLocked(role history.Role, content string) history.Message {
	msg := c.newMessageLocked(role, content)
	c.messages = append(c.messages, msg)

	if err := c.history.SaveMessages(c.messages); err != nil {
		logger.ErrorCF("conversation", "Failed to persist history", map[string]interface{}{
			"error":    err.Error(),
			"messages": len(c.messages),
		})
	}
	return msg
}

// newMessageLocked stamps a message with the current time. Timestamps never
// go below the previous message's and ids strictly increase.
func (c *Controller) newMessageLocked(role history.Role, content string) history.Message {
	now := c.now().UnixMilli()
	ts, id := now, now

	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		if ts < last.Timestamp {
			ts = last.Timestamp
		}
		if lastID, err := strconv.ParseInt(last.ID, 10, 64); err == nil && id <= lastID {
			id = lastID + 1
		}
	}

	return history.Message{
		ID:        strconv.FormatInt(id, 10),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
}

func (c *Controller) snapshotLocked() State {
	msgs := make([]history.Message, len(c.messages))
	copy(msgs, c.messages)
	return State{
		Messages: msgs,
		Sending:  c.sending,
		Config:   c.config,
		Draft:    c.draft,
	}
}

// Exchange is one in-flight send. It completes when the assistant reply,
// genuine or diagnostic, has been appended.
type Exchange struct {
	Request history.Message

	done  chan struct{}
	reply history.Message
	err   error
}

// Done is closed once the reply is in the conversation.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the exchange completes and returns the assistant message.
func (e *Exchange) Wait() history.Message {
	<-e.done
	return e.reply
}

// Err blocks like Wait and returns the webhook failure behind a diagnostic
// reply, or nil.
func (e *Exchange) Err() error {
	<-e.done
	return e.err
}
