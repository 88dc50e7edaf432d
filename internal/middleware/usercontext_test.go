package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestUserContextResolvesHeader(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	var got uuid.UUID
	var ok bool

	handler := UserContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = UserIDFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(UserIDHeader, userID.String())
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !ok || got != userID {
		t.Errorf("Expected user ID %s in context, got %s (ok=%v)", userID, got, ok)
	}
}

func TestUserContextRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	handler := UserContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without identity")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestUserContextRejectsMalformedHeader(t *testing.T) {
	t.Parallel()

	handler := UserContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run with a malformed identity")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(UserIDHeader, "not-a-uuid")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestUserIDFromContextMissing(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/test", nil)
	if _, ok := UserIDFromContext(req); ok {
		t.Error("Expected no user ID in a bare request context")
	}
}
