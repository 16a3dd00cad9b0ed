package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BusStatus reports whether the event bus connection is up.
type BusStatus interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store Pinger
	bus   BusStatus
}

// NewHealthHandler creates a new health handler. bus may be nil when the
// event bus is disabled.
func NewHealthHandler(store Pinger, bus BusStatus) *HealthHandler {
	return &HealthHandler{
		store: store,
		bus:   bus,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready", Reason: "database unreachable"})
		return
	}

	if h.bus != nil && !h.bus.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready", Reason: "event bus not connected"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
