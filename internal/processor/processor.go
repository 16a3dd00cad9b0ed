// Package processor dispatches persisted conversation events to their
// handlers and records each event's outcome.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/agent"
	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/internal/store"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
	"github.com/swiss-ai-registry/event-processor/pkg/metrics"
	"github.com/swiss-ai-registry/event-processor/pkg/tracing"
)

// ErrEventNotFound is returned when the requested event id does not exist.
var ErrEventNotFound = errors.New("event not found")

// Notifier receives the outcome of every marked event.
type Notifier interface {
	PublishOutcome(ctx context.Context, outcome *model.EventOutcome) error
}

// Options tunes a Processor. Zero values fall back to defaults.
type Options struct {
	SessionTTL    time.Duration
	RefreshMargin time.Duration
	AgentTimeout  time.Duration
	Notifier      Notifier
	Now           func() time.Time
}

const (
	defaultSessionTTL    = time.Hour
	defaultRefreshMargin = 5 * time.Minute
	defaultAgentTimeout  = 30 * time.Second
)

// Processor handles conversation events.
type Processor struct {
	store    store.Store
	agent    agent.Client
	notifier Notifier
	logger   *logger.Logger
	tracer   trace.Tracer

	sessionTTL    time.Duration
	refreshMargin time.Duration
	agentTimeout  time.Duration
	now           func() time.Time
}

// New creates a new event processor.
func New(st store.Store, ag agent.Client, log *logger.Logger, opts Options) *Processor {
	p := &Processor{
		store:         st,
		agent:         ag,
		notifier:      opts.Notifier,
		logger:        log.Named("processor"),
		tracer:        tracing.Tracer("github.com/swiss-ai-registry/event-processor/internal/processor"),
		sessionTTL:    opts.SessionTTL,
		refreshMargin: opts.RefreshMargin,
		agentTimeout:  opts.AgentTimeout,
		now:           opts.Now,
	}
	if p.sessionTTL <= 0 {
		p.sessionTTL = defaultSessionTTL
	}
	if p.refreshMargin <= 0 {
		p.refreshMargin = defaultRefreshMargin
	}
	if p.agentTimeout <= 0 {
		p.agentTimeout = defaultAgentTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ProcessEventByID loads an event and processes it.
func (p *Processor) ProcessEventByID(ctx context.Context, eventID string) error {
	event, err := p.store.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	return p.ProcessEvent(ctx, event)
}

// ProcessEvent runs the handler for the event's type and records the
// outcome on the event row. Unrecognized types are skipped without error and
// left pending. A handler error marks the event failed and is returned.
func (p *Processor) ProcessEvent(ctx context.Context, event *model.ConversationEvent) error {
	log := logger.FromContext(ctx, p.logger).ForEvent(event.ID, string(event.Type), event.ConversationID)

	if !event.Type.Known() {
		log.Warn("unrecognized event type, skipping")
		metrics.EventsProcessed.WithLabelValues("unknown", "skipped").Inc()
		return nil
	}

	if event.Status != "" && event.Status != model.EventStatusPending {
		log.Info("event already handled", zap.String("status", string(event.Status)))
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "event "+string(event.Type), trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
		attribute.String("conversation.id", event.ConversationID),
	))
	defer span.End()

	start := time.Now()
	handlerErr := p.dispatch(ctx, event, log)
	duration := time.Since(start)

	// Bookkeeping must land even if the caller went away mid-handler.
	markCtx := context.WithoutCancel(ctx)

	if handlerErr != nil {
		span.RecordError(handlerErr)
		span.SetStatus(codes.Error, handlerErr.Error())
		log.Error("event handler failed", zap.Error(handlerErr), zap.Duration("duration", duration))

		msg := handlerErr.Error()
		if err := p.store.MarkEventProcessed(markCtx, event.ID, &msg); err != nil {
			log.Error("failed to mark event failed", zap.Error(err))
		}
		metrics.RecordEvent(string(event.Type), string(model.EventStatusFailed), duration.Seconds())
		p.notify(markCtx, event, model.EventStatusFailed, msg, log)
		return handlerErr
	}

	if err := p.store.MarkEventProcessed(markCtx, event.ID, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	log.Info("event processed", zap.Duration("duration", duration))
	metrics.RecordEvent(string(event.Type), string(model.EventStatusProcessed), duration.Seconds())
	p.notify(markCtx, event, model.EventStatusProcessed, "", log)
	return nil
}

func (p *Processor) dispatch(ctx context.Context, event *model.ConversationEvent, log *logger.Logger) error {
	switch event.Type {
	case model.EventTypeUserMessageCreated:
		return p.handleUserMessage(ctx, event, log)
	case model.EventTypeConversationStarted:
		return p.handleConversationStarted(ctx, event, log)
	case model.EventTypeSessionExpired:
		return p.handleSessionExpired(ctx, event, log)
	case model.EventTypeFileUploadCompleted,
		model.EventTypeToolExecutionRequested,
		model.EventTypeAgentResponseStreaming:
		log.Info("event received, no processing defined")
		return nil
	default:
		return fmt.Errorf("no handler for event type %q", event.Type)
	}
}

func (p *Processor) notify(ctx context.Context, event *model.ConversationEvent, status model.EventStatus, errMsg string, log *logger.Logger) {
	if p.notifier == nil {
		return
	}

	err := p.notifier.PublishOutcome(ctx, &model.EventOutcome{
		EventID:        event.ID,
		ConversationID: event.ConversationID,
		Type:           event.Type,
		Status:         status,
		Error:          errMsg,
		ProcessedAt:    p.now(),
	})
	if err != nil {
		log.Warn("failed to publish event outcome", zap.Error(err))
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}
	return nil
}
