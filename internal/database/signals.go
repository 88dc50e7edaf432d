package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulse/internal/models"
)

// SignalRepository handles versioned signal storage keyed by
// (user_id, entry_id, key).
type SignalRepository struct {
	db *DB
}

// NewSignalRepository creates a new signal repository.
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create appends a new version for the signal's logical key.
func (r *SignalRepository) Create(ctx context.Context, s *models.Signal) error {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		var next int
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM signals WHERE user_id = $1 AND entry_id = $2 AND key = $3`,
			s.UserID, s.EntryID, s.Key,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute next version: %w", err)
		}

		query := `
			INSERT INTO signals (user_id, entry_id, key, version, value, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`
		err = r.db.QueryRowContext(ctx, query,
			s.UserID, s.EntryID, s.Key, next, s.Value, s.Confidence, time.Now(),
		).Scan(&s.CreatedAt)

		if err == nil {
			s.Version = next
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("failed to create signal: %w", err)
		}
	}

	return fmt.Errorf("signal (%s, %d, %q): %w", s.UserID, s.EntryID, s.Key, ErrVersionConflict)
}

// GetCurrentByUser returns the current version of every signal for the user.
func (r *SignalRepository) GetCurrentByUser(ctx context.Context, userID uuid.UUID) ([]*models.Signal, error) {
	query := `
		SELECT DISTINCT ON (entry_id, key)
			user_id, entry_id, key, version, value, confidence, created_at
		FROM signals
		WHERE user_id = $1
		ORDER BY entry_id, key, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		s := &models.Signal{}
		err := rows.Scan(&s.UserID, &s.EntryID, &s.Key, &s.Version, &s.Value, &s.Confidence, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

// GetLatestByKey returns the most recently created current signal with the
// given key, or ErrNotFound.
func (r *SignalRepository) GetLatestByKey(ctx context.Context, userID uuid.UUID, key string) (*models.Signal, error) {
	signals, err := r.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var latest *models.Signal
	for _, s := range signals {
		if s.Key != key {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("signal key %q: %w", key, ErrNotFound)
	}
	return latest, nil
}
