package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f *fakePinger) PingContext(context.Context) error { return f.err }

type fakeQueueHealth struct{ err error }

func (f *fakeQueueHealth) HealthCheck(context.Context) error { return f.err }

func TestHealthCheckBasicMode(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(&fakePinger{}, nil, nil)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks != nil {
		t.Error("basic mode must not run dependency checks")
	}
}

func TestHealthCheckExtendedMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		db         *fakePinger
		queue      HealthCheckable
		cache      Pinger
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			db:         &fakePinger{},
			queue:      &fakeQueueHealth{},
			cache:      &fakePinger{},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"database": "healthy", "rabbitmq": "healthy", "redis": "healthy"},
		},
		{
			name:       "database down",
			db:         &fakePinger{err: errors.New("connection refused")},
			queue:      &fakeQueueHealth{},
			cache:      &fakePinger{},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "optional deps not configured",
			db:         &fakePinger{},
			queue:      nil,
			cache:      nil,
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"database": "healthy", "rabbitmq": "not configured", "redis": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.db, tt.queue, tt.cache)

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest("GET", "/healthz?mode=extended", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantState)
			}
			for key, want := range tt.wantChecks {
				if resp.Checks[key] != want {
					t.Errorf("checks[%s] = %q, want %q", key, resp.Checks[key], want)
				}
			}
		})
	}
}
