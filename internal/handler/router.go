package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiss-ai-registry/event-processor/internal/middleware"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

// RouterConfig carries what the HTTP surface needs.
type RouterConfig struct {
	Events *EventHandler
	Health *HealthHandler
	Logger *logger.Logger

	// JWTSecret enables bearer verification on the processing endpoint.
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Options("/", cfg.Events.Preflight)
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		if cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret, "service_role"))
		}
		r.Post("/", cfg.Events.Process)
	})

	return r
}
