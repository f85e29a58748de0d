// Package conversation keeps the ordered message history of a chat session and
// trims it to fit the model's context window.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/prompts"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUninitialized State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageStore persists conversation turns.
type MessageStore interface {
	NextChatID(ctx context.Context) (int64, error)
	InsertMessages(ctx context.Context, msgs []*models.ConversationMessage) error
	ListByChat(ctx context.Context, chatID int64, userID string, orgID int64) ([]*models.ConversationMessage, error)
}

// TokenCounter prices a full message list.
type TokenCounter interface {
	Count(ctx context.Context, msgs []models.ConversationMessage) int
}

// Session is the message log of one chat. It is not safe for concurrent use;
// the Registry serializes access per handle.
type Session struct {
	personas *prompts.Registry
	now      func() time.Time

	state     State
	chatID    int64
	persona   prompts.Persona
	hasSystem bool
	messages  []models.ConversationMessage
	pending   []models.ConversationMessage
}

// NewSession creates an uninitialized session.
func NewSession(personas *prompts.Registry) *Session {
	return &Session{personas: personas, now: time.Now}
}

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.state }

// ChatID returns the persisted chat id, or 0 before the first flush.
func (s *Session) ChatID() int64 { return s.chatID }

// Persona returns the persona tag attached to new messages.
func (s *Session) Persona() prompts.Persona { return s.persona }

// HasSystemMessage reports whether index 0 holds the system message.
func (s *Session) HasSystemMessage() bool { return s.hasSystem }

// Len returns the number of messages in the window.
func (s *Session) Len() int { return len(s.messages) }

// Messages returns a copy of the current window, oldest first.
func (s *Session) Messages() []models.ConversationMessage {
	out := make([]models.ConversationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Load activates the session from the persisted history of chatID as owned by
// userID in orgID. A zero chatID starts an empty conversation. A chat with no
// rows for that owner is apperrors.ErrNotFound. Loading an active session is a
// no-op.
func (s *Session) Load(ctx context.Context, store MessageStore, chatID int64, userID string, orgID int64) error {
	if s.state == StateActive {
		return nil
	}
	if chatID == 0 || store == nil {
		s.activate()
		return nil
	}

	history, err := store.ListByChat(ctx, chatID, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}
	if len(history) == 0 {
		return fmt.Errorf("chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	s.messages = make([]models.ConversationMessage, 0, len(history))
	for _, msg := range history {
		s.messages = append(s.messages, *msg)
	}
	s.hasSystem = len(s.messages) > 0 && s.messages[0].Role == models.RoleSystem
	if n := len(s.messages); n > 0 {
		if p, err := prompts.ParsePersona(s.messages[n-1].LLMType); err == nil {
			s.persona = p
		}
	}
	s.chatID = chatID
	s.state = StateActive
	return nil
}

func (s *Session) activate() {
	if s.state == StateUninitialized {
		s.state = StateActive
	}
}

// SetSystemMessage installs the persona's system text at index 0, replacing an
// existing system message in place. New messages are tagged with the persona.
func (s *Session) SetSystemMessage(p prompts.Persona) {
	s.activate()
	s.persona = p

	msg := s.newMessage(models.RoleSystem, []models.ContentPart{models.TextPart(s.personas.SystemMessage(p))})
	switch {
	case s.hasSystem:
		s.messages[0] = msg
	case len(s.messages) == 0:
		s.messages = append(s.messages, msg)
	default:
		s.messages = append([]models.ConversationMessage{msg}, s.messages...)
	}
	s.hasSystem = true
}

// AppendUserMessage adds a user turn with one text part and one image part per
// attachment URL.
func (s *Session) AppendUserMessage(text string, attachmentURLs []string) {
	s.activate()
	parts := make([]models.ContentPart, 0, 1+len(attachmentURLs))
	parts = append(parts, models.TextPart(text))
	for _, url := range attachmentURLs {
		parts = append(parts, models.ImagePart(url))
	}
	s.push(s.newMessage(models.RoleUser, parts))
}

// AppendAssistantMessage adds the model's reply.
func (s *Session) AppendAssistantMessage(text string) {
	s.activate()
	s.push(s.newMessage(models.RoleAssistant, []models.ContentPart{models.TextPart(text)}))
}

func (s *Session) push(msg models.ConversationMessage) {
	s.messages = append(s.messages, msg)
	s.pending = append(s.pending, msg)
}

func (s *Session) newMessage(role models.MessageRole, parts []models.ContentPart) models.ConversationMessage {
	return models.ConversationMessage{
		ChatID:    s.chatID,
		LLMType:   s.persona.Key(),
		Role:      role,
		Content:   parts,
		Timestamp: s.now().UTC(),
		IsUser:    role == models.RoleUser,
	}
}

// EnforceBudget evicts the oldest non-system messages while the window costs
// more than maxTokens. The system message and the newest message are never
// evicted, so the window may still exceed the budget once only they remain.
// Returns the number of evicted messages.
func (s *Session) EnforceBudget(ctx context.Context, maxTokens int, counter TokenCounter) int {
	floor, oldest := 1, 0
	if s.hasSystem {
		floor, oldest = 2, 1
	}

	evicted := 0
	for len(s.messages) > floor && counter.Count(ctx, s.messages) > maxTokens {
		s.messages = append(s.messages[:oldest], s.messages[oldest+1:]...)
		evicted++
	}
	return evicted
}

// FlushToStore persists turns appended since the last flush. The chat id is
// allocated from the store on the first flush of a new conversation.
func (s *Session) FlushToStore(ctx context.Context, store MessageStore, userID string, orgID int64) error {
	if len(s.pending) == 0 {
		return nil
	}

	if s.chatID == 0 {
		id, err := store.NextChatID(ctx)
		if err != nil {
			return fmt.Errorf("failed to allocate chat id: %w", err)
		}
		s.chatID = id
	}

	rows := make([]*models.ConversationMessage, len(s.pending))
	for i := range s.pending {
		msg := s.pending[i]
		msg.ChatID = s.chatID
		msg.UserID = userID
		msg.OrganizationID = orgID
		rows[i] = &msg
	}

	if err := store.InsertMessages(ctx, rows); err != nil {
		return fmt.Errorf("failed to persist messages: %w", err)
	}
	s.pending = nil
	return nil
}

// Checkpoint is a saved window that Rollback returns to.
type Checkpoint struct {
	state     State
	persona   prompts.Persona
	hasSystem bool
	messages  []models.ConversationMessage
	pending   int
}

// Checkpoint captures the window before a turn.
func (s *Session) Checkpoint() Checkpoint {
	return Checkpoint{
		state:     s.state,
		persona:   s.persona,
		hasSystem: s.hasSystem,
		messages:  s.Messages(),
		pending:   len(s.pending),
	}
}

// Rollback undoes everything since cp was taken: the system message swap, the
// appended turns, unflushed rows, and any evictions. The chat id is kept.
func (s *Session) Rollback(cp Checkpoint) {
	s.state = cp.state
	s.persona = cp.persona
	s.hasSystem = cp.hasSystem
	s.messages = cp.messages
	if cp.pending <= len(s.pending) {
		s.pending = s.pending[:cp.pending]
	}
}

// Reset returns the session to its uninitialized state.
func (s *Session) Reset() {
	s.state = StateUninitialized
	s.chatID = 0
	s.persona = prompts.PersonaDefault
	s.hasSystem = false
	s.messages = nil
	s.pending = nil
}
