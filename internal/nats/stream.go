package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/swiss-ai-registry/event-processor/internal/model"
)

const (
	// StreamName is the name of the registry events stream.
	StreamName = "REGISTRY_EVENTS"

	// SubjectPrefix is the prefix for all registry event subjects.
	SubjectPrefix = "registry.events"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the registry events stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation event triggers and processing outcomes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PendingFilter matches every event trigger. Producers publish on
// registry.events.pending.<event_type>.
func PendingFilter() string {
	return SubjectPrefix + ".pending.>"
}

// OutcomeSubject returns the subject an event outcome is published on.
func OutcomeSubject(eventType model.EventType) string {
	return fmt.Sprintf("%s.outcome.%s", SubjectPrefix, eventType)
}

// PublishOutcome publishes the result of processing an event.
func (m *StreamManager) PublishOutcome(ctx context.Context, outcome *model.EventOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, OutcomeSubject(outcome.Type), data); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}

	return nil
}
