package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/middleware"
	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

// EventProcessor processes one persisted event by id.
type EventProcessor interface {
	ProcessEventByID(ctx context.Context, eventID string) error
}

// EventHandler handles the event processing endpoint.
type EventHandler struct {
	processor EventProcessor
	logger    *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(processor EventProcessor, log *logger.Logger) *EventHandler {
	return &EventHandler{
		processor: processor,
		logger:    log,
	}
}

// Process handles POST /
//
// Every failure is reported as 500 with an error body; callers are internal
// triggers that do not distinguish error classes.
func (h *EventHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ProcessEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid request body")
		return
	}

	if err := middleware.ValidateEventID(req.EventID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := logger.FromContext(ctx, h.logger)
	if subject := middleware.GetSubject(ctx); subject != "" {
		log = log.With(
			zap.String("caller", subject),
			zap.String("caller_role", middleware.GetRole(ctx)),
		)
		ctx = logger.IntoContext(ctx, log)
	}

	if err := h.processor.ProcessEventByID(ctx, req.EventID); err != nil {
		log.Error("event processing failed",
			zap.String("event_id", req.EventID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &model.ProcessEventResponse{
		Success: true,
		EventID: req.EventID,
	})
}

// Preflight handles OPTIONS /
func (h *EventHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
