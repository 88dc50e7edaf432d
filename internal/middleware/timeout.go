package middleware

import (
	"context"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds capture and feed requests; regeneration
// itself runs in the worker, never inline.
const DefaultRequestTimeout = 30 * time.Second

// Timeout enforces a deadline on each request: the context is cancelled
// and the client gets a 503 when the handler overruns.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			handler := http.TimeoutHandler(next, timeout, "Request Timeout")
			handler.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
