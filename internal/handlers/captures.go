package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/internal/services/capture"
	"github.com/pulsefeed/pulse/internal/validation"
)

const (
	// MaxCaptureTextLength is the maximum length for capture text
	MaxCaptureTextLength = 4000
)

// Ingester is the capture ingest surface the handler depends on.
type Ingester interface {
	Ingest(ctx context.Context, userID uuid.UUID, in *capture.Input) (*models.Entry, error)
}

// CaptureHandler handles capture ingest requests
type CaptureHandler struct {
	svc Ingester
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(svc Ingester) *CaptureHandler {
	return &CaptureHandler{svc: svc}
}

// RegisterRoutes registers capture routes on the given router
// The router should already carry the /captures prefix
func (h *CaptureHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.CreateCapture).Methods("POST")
}

// CreateCapture ingests a capture for the authenticated user
func (h *CaptureHandler) CreateCapture(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req capture.Input
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	entry, err := h.svc.Ingest(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrEmptyText):
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Text is required and cannot be empty after sanitization")
		case errors.Is(err, capture.ErrMissingTaskKey), errors.Is(err, capture.ErrMissingCommitment):
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		case errors.Is(err, models.ErrInvalidTransition):
			// The capture itself was stored; the carried transition was
			// impossible from the current state
			respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
		default:
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to ingest capture")
		}
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}
