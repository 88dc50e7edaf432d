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

// FeedRepository handles feed snapshot storage: append-only, versioned per
// user with a strictly increasing feed_version. The versioned-insert guard
// makes stale or duplicate workflow completions inert: an older run can
// never move the feed backward, it can only append a newer version.
type FeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// Create persists a new snapshot with the next feed version for the user.
func (r *FeedRepository) Create(ctx context.Context, snap *models.FeedSnapshot) error {
	itemsJSON, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	cacheJSON, err := json.Marshal(snap.Cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metrics: %w", err)
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		var next int64
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(feed_version), 0) + 1 FROM feed_snapshots WHERE user_id = $1`,
			snap.UserID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute next feed version: %w", err)
		}

		query := `
			INSERT INTO feed_snapshots (user_id, feed_version, items, last_processed_entry_id, cache_metrics, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		err = r.db.QueryRowContext(ctx, query,
			snap.UserID, next, itemsJSON, snap.LastProcessedEntryID, cacheJSON, time.Now(),
		).Scan(&snap.CreatedAt)

		if err == nil {
			snap.FeedVersion = next
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("failed to create feed snapshot: %w", err)
		}
	}

	return fmt.Errorf("feed snapshot (%s): %w", snap.UserID, ErrVersionConflict)
}

// GetLatest returns the current (max feed_version) snapshot, or ErrNotFound
// when the user has no feed yet.
func (r *FeedRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*models.FeedSnapshot, error) {
	query := `
		SELECT user_id, feed_version, items, last_processed_entry_id, cache_metrics, created_at
		FROM feed_snapshots
		WHERE user_id = $1
		ORDER BY feed_version DESC
		LIMIT 1
	`

	snap, err := scanFeedSnapshot(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feed for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed snapshot: %w", err)
	}
	return snap, nil
}

// GetHistory returns snapshots newest-first, capped at limit (0 = all).
func (r *FeedRepository) GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FeedSnapshot, error) {
	query := `
		SELECT user_id, feed_version, items, last_processed_entry_id, cache_metrics, created_at
		FROM feed_snapshots
		WHERE user_id = $1
		ORDER BY feed_version DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed history: %w", err)
	}
	defer rows.Close()

	var history []*models.FeedSnapshot
	for rows.Next() {
		snap, err := scanFeedSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed snapshot: %w", err)
		}
		history = append(history, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed history: %w", err)
	}

	return history, nil
}

func scanFeedSnapshot(row rowScanner) (*models.FeedSnapshot, error) {
	snap := &models.FeedSnapshot{}
	var itemsJSON, cacheJSON []byte

	err := row.Scan(
		&snap.UserID,
		&snap.FeedVersion,
		&itemsJSON,
		&snap.LastProcessedEntryID,
		&cacheJSON,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	if len(cacheJSON) > 0 {
		if err := json.Unmarshal(cacheJSON, &snap.Cache); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache metrics: %w", err)
		}
	}

	return snap, nil
}
