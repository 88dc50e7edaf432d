package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is any dependency that can answer a liveness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthCheckable matches the queue's health probe.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) error
}

// HealthChecker handles health check requests
type HealthChecker struct {
	db    Pinger
	queue HealthCheckable
	cache Pinger
}

// NewHealthChecker creates a new health checker. Queue and cache may be
// nil when not configured.
func NewHealthChecker(db Pinger, queue HealthCheckable, cache Pinger) *HealthChecker {
	return &HealthChecker{db: db, queue: queue, cache: cache}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if mode == "extended" {
		checks := make(map[string]string)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			response.Status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}

		if h.queue == nil {
			checks["rabbitmq"] = "not configured"
		} else if err := h.queue.HealthCheck(ctx); err != nil {
			response.Status = "unhealthy"
			checks["rabbitmq"] = "unhealthy: " + err.Error()
		} else {
			checks["rabbitmq"] = "healthy"
		}

		if h.cache == nil {
			checks["redis"] = "not configured"
		} else if err := h.cache.PingContext(ctx); err != nil {
			response.Status = "unhealthy"
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}

		response.Checks = checks

		statusCode := http.StatusOK
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(response)
		return
	}

	// Basic mode just reports that the server is running
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
