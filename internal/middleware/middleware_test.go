package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, role string) string {
	t.Helper()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authedHandler(roles ...string) http.Handler {
	return Auth(testSecret, roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetRole(r.Context()) + ":" + GetSubject(r.Context())))
	}))
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		roles  []string
		status int
	}{
		{"bearer service role", "Authorization", "Bearer " + signToken(t, testSecret, "service_role"), []string{"service_role"}, http.StatusOK},
		{"apikey header", "apikey", signToken(t, testSecret, "service_role"), nil, http.StatusOK},
		{"missing", "", "", nil, http.StatusUnauthorized},
		{"wrong secret", "Authorization", "Bearer " + signToken(t, "other", "service_role"), nil, http.StatusUnauthorized},
		{"malformed header", "Authorization", "Token abc", nil, http.StatusUnauthorized},
		{"role not allowed", "Authorization", "Bearer " + signToken(t, testSecret, "authenticated"), []string{"service_role"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()

			authedHandler(tt.roles...).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "service_role:svc", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestValidateEventID(t *testing.T) {
	assert.NoError(t, ValidateEventID("0b9f8a7e-2f4c-4a8e-9b1d-3c5e6f7a8b9c"))
	assert.Error(t, ValidateEventID(""))
	assert.Error(t, ValidateEventID(strings.Repeat("x", maxEventIDLength+1)))
	assert.Error(t, ValidateEventID("bad\xff"))
}

func TestLogging_SetsCorrelationID(t *testing.T) {
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, second.Body.String())
}

func TestLogging_StoresRequestLogger(t *testing.T) {
	fallback := logger.NewNop()
	var scoped *logger.Logger
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = logger.FromContext(r.Context(), fallback)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotNil(t, scoped)
	assert.NotSame(t, fallback, scoped)
	assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader))
}
