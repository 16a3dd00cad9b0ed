// Package store persists conversation events, conversations, agent sessions
// and messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/swiss-ai-registry/event-processor/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the row changed since it was read.
var ErrConflict = errors.New("row changed concurrently")

// Store is the relational data store the processor runs against.
type Store interface {
	// Events
	CreateEvent(ctx context.Context, event *model.ConversationEvent) error
	GetEvent(ctx context.Context, id string) (*model.ConversationEvent, error)
	// MarkEventProcessed records the outcome of an event. A nil errMsg marks
	// it processed, otherwise failed with the message attached.
	MarkEventProcessed(ctx context.Context, eventID string, errMsg *string) error

	// Conversations
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	SetConversationSession(ctx context.Context, conversationID, adkSessionID string, expiresAt time.Time) error
	SetConversationStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error
	// UpdateConversationTotals adds one message and tokens to the running totals.
	UpdateConversationTotals(ctx context.Context, conversationID string, tokens int) error

	// Agent sessions
	CreateSession(ctx context.Context, session *model.AgentSession) error
	GetSessionByAdkID(ctx context.Context, adkSessionID string) (*model.AgentSession, error)
	// RefreshSession moves the expiry of a session from prevExpiresAt to
	// expiresAt and reactivates it. Returns ErrConflict if the stored expiry
	// is no longer prevExpiresAt.
	RefreshSession(ctx context.Context, id string, prevExpiresAt, expiresAt time.Time) error
	SetSessionStatus(ctx context.Context, id string, status model.SessionStatus) error
	ExpireActiveSessions(ctx context.Context, conversationID string) (int64, error)

	// Messages
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*model.Message, error)

	Ping(ctx context.Context) error
	Close() error
}
