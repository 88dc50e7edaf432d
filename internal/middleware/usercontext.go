package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// UserIDHeader carries the caller's identity, set by the gateway in
// front of this service. The service itself does no token validation.
const UserIDHeader = "X-User-ID"

// UserIDFromContext extracts the caller's user ID from the request context
func UserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDContextKey).(uuid.UUID)
	return id, ok
}

// SetUserIDInContext attaches a user ID to the context. Exported for
// handler tests.
func SetUserIDInContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserContext resolves the caller's identity from the gateway header and
// attaches it to the request context
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			http.Error(w, "Missing "+UserIDHeader+" header", http.StatusUnauthorized)
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid "+UserIDHeader+" header", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserIDInContext(r.Context(), userID)))
	})
}
