package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
	"github.com/swiss-ai-registry/event-processor/pkg/metrics"
)

// ConsumerName is the durable consumer the processor binds to.
const ConsumerName = "event-processor"

// EventProcessor processes one persisted event by id.
type EventProcessor interface {
	ProcessEventByID(ctx context.Context, eventID string) error
}

// message is the part of jetstream.Msg the consumer needs.
type message interface {
	Data() []byte
	Subject() string
	Ack() error
	Term() error
}

// Consumer turns event triggers on the bus into processor calls.
type Consumer struct {
	client    *Client
	processor EventProcessor
	logger    *logger.Logger
	timeout   time.Duration
}

// NewConsumer creates a new event trigger consumer.
func NewConsumer(client *Client, processor EventProcessor, timeout time.Duration, log *logger.Logger) *Consumer {
	return &Consumer{
		client:    client,
		processor: processor,
		logger:    log.Named("consumer"),
		timeout:   timeout,
	}
}

// Start binds the durable consumer and begins delivering messages. Stop the
// returned context to end consumption.
func (c *Consumer) Start(ctx context.Context) (jetstream.ConsumeContext, error) {
	cons, err := c.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: PendingFilter(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    3,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consuming event triggers", zap.String("filter", PendingFilter()))
	return cc, nil
}

// handle processes one trigger. The outcome is recorded on the event row, so
// the message is acked either way, including when shutdown cancels a handler
// mid-flight: that event is left failed and is not retried. Only undecodable
// triggers are terminated.
func (c *Consumer) handle(ctx context.Context, msg message) {
	var req model.ProcessEventRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil || req.EventID == "" {
		c.logger.Warn("dropping malformed event trigger", zap.String("subject", msg.Subject()), zap.Error(err))
		if err := msg.Term(); err != nil {
			c.logger.Warn("failed to terminate message", zap.Error(err))
		}
		metrics.BusMessages.WithLabelValues("terminated").Inc()
		return
	}

	procCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.processor.ProcessEventByID(procCtx, req.EventID)
	cancel()

	disposition := "processed"
	if err != nil {
		disposition = "failed"
		c.logger.Error("event processing failed", zap.String("event_id", req.EventID), zap.Error(err))
	}

	if err := msg.Ack(); err != nil {
		c.logger.Warn("failed to ack message", zap.String("event_id", req.EventID), zap.Error(err))
	}
	metrics.BusMessages.WithLabelValues(disposition).Inc()
}
