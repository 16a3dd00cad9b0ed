package model

import (
	"encoding/json"
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeUserMessageCreated     EventType = "message.user.created"
	EventTypeConversationStarted    EventType = "conversation.started"
	EventTypeSessionExpired         EventType = "session.expired"
	EventTypeFileUploadCompleted    EventType = "file.upload.completed"
	EventTypeToolExecutionRequested EventType = "tool.execution.requested"
	EventTypeAgentResponseStreaming EventType = "agent.response.streaming"
)

// Known reports whether t is one of the recognized event types.
func (t EventType) Known() bool {
	switch t {
	case EventTypeUserMessageCreated,
		EventTypeConversationStarted,
		EventTypeSessionExpired,
		EventTypeFileUploadCompleted,
		EventTypeToolExecutionRequested,
		EventTypeAgentResponseStreaming:
		return true
	}
	return false
}

// EventStatus is the processing state of a persisted event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusProcessed EventStatus = "processed"
	EventStatusFailed    EventStatus = "failed"
)

// ConversationEvent is a persisted record describing something that happened
// in a conversation, awaiting processing.
type ConversationEvent struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Type           EventType       `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Status         EventStatus     `json:"status"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UserMessagePayload is carried by message.user.created.
type UserMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// ConversationStartedPayload is carried by conversation.started.
type ConversationStartedPayload struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

// SessionExpiredPayload is carried by session.expired.
type SessionExpiredPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ProcessEventRequest is the body of the processing endpoint.
type ProcessEventRequest struct {
	EventID string `json:"event_id"`
}

// ProcessEventResponse is returned when an event was handled.
type ProcessEventResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
}

// EventOutcome is published after an event has been marked.
type EventOutcome struct {
	EventID        string      `json:"event_id"`
	ConversationID string      `json:"conversation_id"`
	Type           EventType   `json:"event_type"`
	Status         EventStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	ProcessedAt    time.Time   `json:"processed_at"`
}
