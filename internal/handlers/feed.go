package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/queue"
)

const (
	// DefaultHistoryLimit is the default number of snapshots returned
	DefaultHistoryLimit = 20
	// MaxHistoryLimit is the maximum number of snapshots returned
	MaxHistoryLimit = 100
)

// Refresher triggers an out-of-schedule regeneration.
type Refresher interface {
	OnManualRefresh(ctx context.Context, userID uuid.UUID) (*queue.Job, error)
}

// ViewRecorder feeds read activity into the adaptive scheduler.
type ViewRecorder interface {
	RecordView(ctx context.Context, userID uuid.UUID) error
}

// FeedHandler handles feed read and refresh requests
type FeedHandler struct {
	feeds     database.FeedRepositoryInterface
	refresher Refresher
	views     ViewRecorder
}

// NewFeedHandler creates a new feed handler. views may be nil, in which
// case reads are not tracked.
func NewFeedHandler(feeds database.FeedRepositoryInterface, refresher Refresher, views ViewRecorder) *FeedHandler {
	return &FeedHandler{feeds: feeds, refresher: refresher, views: views}
}

// RegisterRoutes registers feed routes on the given router
// The router should already carry the /feed prefix
func (h *FeedHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetLatest).Methods("GET")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/refresh", h.Refresh).Methods("POST")
}

// GetLatest returns the user's current feed snapshot
func (h *FeedHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	snap, err := h.feeds.GetLatest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "No feed has been generated yet")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve feed")
		return
	}

	if h.views != nil {
		// view tracking is advisory; never fail the read over it
		_ = h.views.RecordView(r.Context(), userID)
	}

	respondJSON(w, http.StatusOK, snap)
}

// GetHistory returns recent feed snapshots, newest first
func (h *FeedHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	limit := DefaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > MaxHistoryLimit {
			limit = MaxHistoryLimit
		}
	}

	snaps, err := h.feeds.GetHistory(r.Context(), userID, limit)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve feed history")
		return
	}

	respondJSON(w, http.StatusOK, snaps)
}

// Refresh enqueues an immediate regeneration, bypassing the adaptive
// schedule
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	job, err := h.refresher.OnManualRefresh(r.Context(), userID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to enqueue regeneration")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"reason": job.Reason,
	})
}
