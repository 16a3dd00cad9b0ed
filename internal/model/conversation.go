// Package model defines data structures for the registry event processor.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
)

// Conversation links a user, an agent, and a sequence of messages.
// AdkSessionID and AdkSessionExpiresAt cache the current agent session lease.
type Conversation struct {
	ID                  string             `json:"id"`
	UserID              string             `json:"user_id"`
	AgentID             string             `json:"agent_id"`
	Status              ConversationStatus `json:"status"`
	AdkSessionID        *string            `json:"adk_session_id,omitempty"`
	AdkSessionExpiresAt *time.Time         `json:"adk_session_expires_at,omitempty"`
	TotalMessages       int                `json:"total_messages"`
	TotalTokens         int                `json:"total_tokens"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
