package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulse/internal/models"
)

// ActivityRepository handles per-user activity records. Unlike the
// versioned entities these rows are mutated in place; they only drive
// scheduling.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// GetByUserID retrieves the activity record, or ErrNotFound.
func (r *ActivityRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ActivityRecord, error) {
	rec := &models.ActivityRecord{}
	var timesJSON []byte

	query := `
		SELECT user_id, last_activity_at, capture_times, count_24h, count_7d, count_30d, updated_at
		FROM activity_records
		WHERE user_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.LastActivityAt,
		&timesJSON,
		&rec.Count24h,
		&rec.Count7d,
		&rec.Count30d,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("activity for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity record: %w", err)
	}

	if len(timesJSON) > 0 {
		if err := json.Unmarshal(timesJSON, &rec.CaptureTimes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capture times: %w", err)
		}
	}

	return rec, nil
}

// Upsert creates or replaces the activity record.
func (r *ActivityRepository) Upsert(ctx context.Context, rec *models.ActivityRecord) error {
	timesJSON, err := json.Marshal(rec.CaptureTimes)
	if err != nil {
		return fmt.Errorf("failed to marshal capture times: %w", err)
	}

	query := `
		INSERT INTO activity_records (user_id, last_activity_at, capture_times, count_24h, count_7d, count_30d, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET last_activity_at = EXCLUDED.last_activity_at,
		    capture_times = EXCLUDED.capture_times,
		    count_24h = EXCLUDED.count_24h,
		    count_7d = EXCLUDED.count_7d,
		    count_30d = EXCLUDED.count_30d,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		rec.UserID,
		rec.LastActivityAt,
		timesJSON,
		rec.Count24h,
		rec.Count7d,
		rec.Count30d,
		time.Now(),
	).Scan(&rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert activity record: %w", err)
	}

	return nil
}
