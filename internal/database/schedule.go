package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository stores the per-user needs_regeneration flag. The
// alarm time itself lives in the shared timer queue; this flag is what the
// alarm-fire gate consults.
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// NeedsRegeneration reports the flag; absent rows read as false.
func (r *ScheduleRepository) NeedsRegeneration(ctx context.Context, userID uuid.UUID) (bool, error) {
	var needs bool
	err := r.db.QueryRowContext(ctx,
		`SELECT needs_regeneration FROM schedule_state WHERE user_id = $1`,
		userID,
	).Scan(&needs)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get schedule state: %w", err)
	}
	return needs, nil
}

// SetNeedsRegeneration sets or clears the flag.
func (r *ScheduleRepository) SetNeedsRegeneration(ctx context.Context, userID uuid.UUID, needs bool) error {
	query := `
		INSERT INTO schedule_state (user_id, needs_regeneration, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET needs_regeneration = EXCLUDED.needs_regeneration,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, userID, needs, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set schedule state: %w", err)
	}
	return nil
}
