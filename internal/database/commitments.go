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

// CommitmentRepository handles versioned commitment storage. The logical
// key is (user_id, origin_entry_id); every write inserts a new row with
// version = max(version)+1 and the primary key acts as the transactional
// guard against racing writers.
type CommitmentRepository struct {
	db *DB
}

// NewCommitmentRepository creates a new commitment repository.
func NewCommitmentRepository(db *DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

// Create appends a new version for the commitment's logical key. The
// version field on the passed struct is overwritten with the assigned one.
func (r *CommitmentRepository) Create(ctx context.Context, c *models.Commitment) error {
	metricsJSON, err := json.Marshal(c.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		var next int
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM commitments WHERE user_id = $1 AND origin_entry_id = $2`,
			c.UserID, c.OriginEntryID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute next version: %w", err)
		}

		query := `
			INSERT INTO commitments (user_id, origin_entry_id, version, content, strength, horizon_text, horizon_type, horizon_value, status, metrics, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at
		`
		err = r.db.QueryRowContext(ctx, query,
			c.UserID,
			c.OriginEntryID,
			next,
			c.Content,
			c.Strength,
			c.HorizonText,
			c.Horizon.Type,
			c.Horizon.Value,
			c.Status,
			metricsJSON,
			time.Now(),
		).Scan(&c.CreatedAt)

		if err == nil {
			c.Version = next
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("failed to create commitment: %w", err)
		}
		// Another writer claimed this version; recompute and retry.
	}

	return fmt.Errorf("commitment (%s, %d): %w", c.UserID, c.OriginEntryID, ErrVersionConflict)
}

// GetCurrent returns the max-version row for the logical key.
func (r *CommitmentRepository) GetCurrent(ctx context.Context, userID uuid.UUID, originEntryID int64) (*models.Commitment, error) {
	query := `
		SELECT user_id, origin_entry_id, version, content, strength, horizon_text, horizon_type, horizon_value, status, metrics, created_at
		FROM commitments
		WHERE user_id = $1 AND origin_entry_id = $2
		ORDER BY version DESC
		LIMIT 1
	`

	c, err := scanCommitment(r.db.QueryRowContext(ctx, query, userID, originEntryID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commitment (%s, %d): %w", userID, originEntryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}
	return c, nil
}

// GetCurrentByUser returns the current version of every commitment for the
// user, optionally filtered by status.
func (r *CommitmentRepository) GetCurrentByUser(ctx context.Context, userID uuid.UUID, status *models.CommitmentStatus) ([]*models.Commitment, error) {
	query := `
		SELECT DISTINCT ON (origin_entry_id)
			user_id, origin_entry_id, version, content, strength, horizon_text, horizon_type, horizon_value, status, metrics, created_at
		FROM commitments
		WHERE user_id = $1
		ORDER BY origin_entry_id, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments: %w", err)
	}
	defer rows.Close()

	var commitments []*models.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		if status != nil && c.Status != *status {
			continue
		}
		commitments = append(commitments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commitments: %w", err)
	}

	return commitments, nil
}

// GetHistory returns all versions for the logical key ordered by version.
func (r *CommitmentRepository) GetHistory(ctx context.Context, userID uuid.UUID, originEntryID int64) ([]*models.Commitment, error) {
	query := `
		SELECT user_id, origin_entry_id, version, content, strength, horizon_text, horizon_type, horizon_value, status, metrics, created_at
		FROM commitments
		WHERE user_id = $1 AND origin_entry_id = $2
		ORDER BY version ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, originEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitment history: %w", err)
	}
	defer rows.Close()

	var history []*models.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		history = append(history, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commitment history: %w", err)
	}

	return history, nil
}

// Transition appends a new version with the requested status. The
// transition table is enforced before anything is written; a violation is a
// hard error and leaves state unchanged.
func (r *CommitmentRepository) Transition(ctx context.Context, userID uuid.UUID, originEntryID int64, next models.CommitmentStatus) (*models.Commitment, error) {
	current, err := r.GetCurrent(ctx, userID, originEntryID)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateCommitmentTransition(current.Status, next); err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = next
	if err := r.Create(ctx, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// UpdateMetrics mutates the metrics block in place on the current row.
// Metrics are derivative analytics, not authoritative state, so they do
// not get a new version.
func (r *CommitmentRepository) UpdateMetrics(ctx context.Context, userID uuid.UUID, originEntryID int64, metrics models.CommitmentMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		UPDATE commitments
		SET metrics = $3
		WHERE user_id = $1 AND origin_entry_id = $2
		  AND version = (SELECT MAX(version) FROM commitments WHERE user_id = $1 AND origin_entry_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, userID, originEntryID, metricsJSON)
	if err != nil {
		return fmt.Errorf("failed to update metrics: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("commitment (%s, %d): %w", userID, originEntryID, ErrNotFound)
	}

	return nil
}

func scanCommitment(row rowScanner) (*models.Commitment, error) {
	c := &models.Commitment{}
	var metricsJSON []byte
	var horizonValue sql.NullString

	err := row.Scan(
		&c.UserID,
		&c.OriginEntryID,
		&c.Version,
		&c.Content,
		&c.Strength,
		&c.HorizonText,
		&c.Horizon.Type,
		&horizonValue,
		&c.Status,
		&metricsJSON,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if horizonValue.Valid {
		c.Horizon.Value = horizonValue.String
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &c.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return c, nil
}
