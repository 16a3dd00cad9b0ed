package model

import (
	"time"
)

// SessionStatus is the lease state of an agent session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// AgentSession is a time-bounded lease on an external agent execution context.
type AgentSession struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	AdkSessionID   string        `json:"adk_session_id"`
	Status         SessionStatus `json:"status"`
	ExpiresAt      time.Time     `json:"expires_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Remaining returns how long the lease has left at now.
func (s *AgentSession) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
