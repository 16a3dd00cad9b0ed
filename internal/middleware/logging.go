package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/pkg/logger"
	"github.com/swiss-ai-registry/event-processor/pkg/metrics"
)

// CorrelationIDHeader carries the correlation id in and out.
const CorrelationIDHeader = "X-Correlation-ID"

// quietPaths are logged at debug level; probes and scrapes are frequent.
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Logging assigns a correlation id to each request, stores a request-scoped
// logger in the context, and logs and measures the completed request.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = uuid.Must(uuid.NewV7()).String()
			}
			w.Header().Set(CorrelationIDHeader, correlationID)

			reqLog := log.With(zap.String("correlation_id", correlationID))
			ctx := logger.IntoContext(r.Context(), reqLog)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := zap.InfoLevel
			if quietPaths[r.URL.Path] {
				level = zap.DebugLevel
			}
			if ce := reqLog.Check(level, "request completed"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", duration),
					zap.String("remote_addr", r.RemoteAddr),
				)
			}

			// Label by route pattern to keep cardinality bounded.
			path := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			metrics.RecordRequest(r.Method, path, http.StatusText(status), duration.Seconds())
		})
	}
}
