// Package chat orchestrates conversation turns against the assistant service:
// it owns the conversation index, the active message history, and the state
// machine that sequences list, history, and send operations.
package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"qchat/internal/domain"
)

const (
	// MinInputLen is the minimum user input length accepted for dispatch.
	MinInputLen = 5

	defaultMaxConversations = 8
	defaultMaxMessages      = 30
)

// SessionState is the controller's position in the conversation flow.
type SessionState int

const (
	StateNoConversation SessionState = iota
	StateLoadingList
	StateViewingList
	StateLoadingHistory
	StateViewingHistory
	StateAwaitingReply
)

func (s SessionState) String() string {
	switch s {
	case StateNoConversation:
		return "no_conversation"
	case StateLoadingList:
		return "loading_list"
	case StateViewingList:
		return "viewing_list"
	case StateLoadingHistory:
		return "loading_history"
	case StateViewingHistory:
		return "viewing_history"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// TurnRequest is one outgoing user turn. ConversationID and ParentMessageID
// are empty when the turn opens a new conversation.
type TurnRequest struct {
	UserMessage     string
	ConversationID  string
	ParentMessageID string
}

// TurnReply is the assistant's answer to one turn.
type TurnReply struct {
	ConversationID     string
	UserMessageID      string
	SystemMessageID    string
	SystemMessage      string
	SourceAttributions []domain.SourceAttribution
}

// Assistant is the remote conversational service as the controller needs it.
type Assistant interface {
	ListConversations(ctx context.Context, maxResults int) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, maxResults int) ([]domain.Turn, error)
	SendMessage(ctx context.Context, req TurnRequest) (TurnReply, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Staleness receives the signal that downstream rejected the credential
// triple.
type Staleness interface {
	MarkStale()
}

// authExpirer matches errors that self-identify as authorization failures.
type authExpirer interface {
	AuthExpired() bool
}

// Controller is the session state machine over one active conversation. All
// exported methods are safe for concurrent use; reads return copies so the
// index and history are only ever mutated here.
type Controller struct {
	assistant        Assistant
	staleness        Staleness
	maxConversations int
	maxMessages      int
	now              func() time.Time

	mu            sync.Mutex
	state         SessionState
	conversations []domain.ConversationSummary
	history       []domain.Turn
	active        string
	pendingNew    bool
	inFlight      bool
	epoch         uint64
}

type Option func(*Controller)

func WithMaxConversations(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxConversations = n
		}
	}
}

func WithMaxMessages(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxMessages = n
		}
	}
}

// WithClock overrides the time source used to stamp new turns.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a session controller.
func NewController(assistant Assistant, staleness Staleness, opts ...Option) (*Controller, error) {
	if assistant == nil {
		return nil, errors.New("chat: assistant must not be nil")
	}
	if staleness == nil {
		return nil, errors.New("chat: staleness marker must not be nil")
	}
	c := &Controller{
		assistant:        assistant,
		staleness:        staleness,
		maxConversations: defaultMaxConversations,
		maxMessages:      defaultMaxMessages,
		now:              time.Now,
		state:            StateNoConversation,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoadConversations enumerates the most recent conversations, newest first.
func (c *Controller) LoadConversations(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoadingList
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	convs, err := c.assistant.ListConversations(ctx, c.maxConversations)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// A later action superseded this load; disregard the response.
		return nil
	}
	if err != nil {
		c.state = StateNoConversation
		return c.classify("list_conversations", err)
	}

	sorted := make([]domain.ConversationSummary, len(convs))
	copy(sorted, convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})
	c.conversations = sorted
	c.state = StateViewingList
	return nil
}

// OpenConversation fetches one conversation's history and makes it active.
// The service delivers turns newest first; they are reordered chronologically
// and system turns are tagged for citation rendering.
func (c *Controller) OpenConversation(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	c.state = StateLoadingHistory
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	turns, err := c.assistant.ListMessages(ctx, conversationID, c.maxMessages)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	if err != nil {
		c.state = StateViewingList
		return c.classify("list_messages", err)
	}

	ordered := make([]domain.Turn, len(turns))
	for i, turn := range turns {
		if turn.Role == domain.RoleSystem {
			turn.HasCitations = len(turn.Citations) > 0
		}
		ordered[len(turns)-1-i] = turn
	}
	c.history = ordered
	c.active = conversationID
	c.pendingNew = false
	c.state = StateViewingHistory
	return nil
}

// StartNewConversation resets the history and enters composition for a
// conversation that does not exist yet. The summary entry is only created
// once the first turn succeeds, never speculatively.
func (c *Controller) StartNewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.active = ""
	c.pendingNew = true
	c.epoch++
	c.state = StateAwaitingReply
}

// BackToList leaves the active conversation and returns to the index view.
// Any in-flight response for the abandoned conversation is disregarded.
func (c *Controller) BackToList() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.active = ""
	c.pendingNew = false
	c.epoch++
	c.state = StateViewingList
}

// Send submits one user turn. Input shorter than MinInputLen is rejected
// before any network dispatch. Sends are serialized: a second Send while one
// is in flight is a caller error, not a queue.
func (c *Controller) Send(ctx context.Context, input string) error {
	if utf8.RuneCountInString(input) < MinInputLen {
		return newError(ErrorInvalidInput, "input_too_short", nil)
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return newError(ErrorInvalidInput, "send_in_flight", nil)
	}
	req := TurnRequest{UserMessage: input}
	if !c.pendingNew && c.active != "" {
		req.ConversationID = c.active
		if len(c.history) > 0 {
			req.ParentMessageID = c.history[len(c.history)-1].MessageID
		}
	}
	startedNew := c.pendingNew
	c.inFlight = true
	c.state = StateAwaitingReply
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	reply, err := c.assistant.SendMessage(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.epoch != epoch {
		return nil
	}
	if err != nil {
		if !startedNew {
			c.state = StateViewingHistory
		}
		return c.classify("send", err)
	}

	now := c.now()
	userTurn := domain.Turn{
		MessageID: reply.UserMessageID,
		Body:      input,
		Time:      now,
		Role:      domain.RoleUser,
	}
	systemTurn := domain.Turn{
		MessageID:    reply.SystemMessageID,
		Body:         reply.SystemMessage,
		Time:         now,
		Role:         domain.RoleSystem,
		Citations:    reply.SourceAttributions,
		HasCitations: len(reply.SourceAttributions) > 0,
	}

	history := make([]domain.Turn, 0, len(c.history)+2)
	history = append(history, c.history...)
	history = append(history, userTurn, systemTurn)
	c.history = history

	if startedNew {
		c.active = reply.ConversationID
		c.pendingNew = false
		summary := domain.ConversationSummary{
			ConversationID: reply.ConversationID,
			Title:          input,
			StartTime:      now,
		}
		index := make([]domain.ConversationSummary, 0, len(c.conversations)+1)
		index = append(index, summary)
		index = append(index, c.conversations...)
		c.conversations = index
	}
	c.state = StateViewingHistory
	return nil
}

// DeleteConversation removes a conversation remotely and from the index.
// Delete has no documented failure mode besides authorization, so any RPC
// failure conservatively marks the credentials stale. Removing an id that is
// not in the index is a no-op.
func (c *Controller) DeleteConversation(ctx context.Context, summary domain.ConversationSummary) error {
	if err := c.assistant.DeleteConversation(ctx, summary.ConversationID); err != nil {
		c.staleness.MarkStale()
		if isAuthExpired(err) {
			return newError(ErrorAuthExpired, "delete_conversation", err)
		}
		return newError(ErrorTransport, "delete_conversation", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	index := make([]domain.ConversationSummary, 0, len(c.conversations))
	for _, conv := range c.conversations {
		if conv.ConversationID == summary.ConversationID {
			continue
		}
		index = append(index, conv)
	}
	c.conversations = index
	return nil
}

// State reports the controller's current position in the flow.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conversations returns a copy of the index, newest first.
func (c *Controller) Conversations() []domain.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConversationSummary, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// History returns a copy of the active conversation's turns in chronological
// order.
func (c *Controller) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.history))
	copy(out, c.history)
	return out
}

// ActiveConversation returns the active conversation id and whether the
// session is composing a conversation that does not exist yet.
func (c *Controller) ActiveConversation() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.pendingNew
}

// classify folds an assistant error into the taxonomy. Authorization
// failures additionally mark the credentials stale, exactly once per failure.
func (c *Controller) classify(reason string, err error) error {
	if isAuthExpired(err) {
		c.staleness.MarkStale()
		return newError(ErrorAuthExpired, reason, err)
	}
	return newError(ErrorTransport, reason, err)
}

func isAuthExpired(err error) bool {
	var authErr authExpirer
	return errors.As(err, &authErr) && authErr.AuthExpired()
}
