package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware enforces request timeouts. If a request exceeds the
// timeout the context is cancelled; handlers are expected to check
// context.Done() for cooperative cancellation.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
