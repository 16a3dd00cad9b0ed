package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSAllowedHeaders are the request headers browsers may send.
var CORSAllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// CORS allows every origin and the platform client headers. Preflights pass
// through so the router can answer them.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions, http.MethodGet},
		AllowedHeaders:     CORSAllowedHeaders,
		OptionsPassthrough: true,
		MaxAge:             300,
	})
}
