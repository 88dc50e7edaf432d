package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepRepository persists workflow step results keyed by
// (run_id, step_name). Re-running a workflow replays stored results
// instead of re-executing the steps.
type StepRepository struct {
	db *DB
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *DB) *StepRepository {
	return &StepRepository{db: db}
}

// Get returns the memoized result for the step, if any.
func (r *StepRepository) Get(ctx context.Context, runID uuid.UUID, name string) (json.RawMessage, bool, error) {
	var result []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM workflow_steps WHERE run_id = $1 AND step_name = $2`,
		runID, name,
	).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get workflow step: %w", err)
	}
	return result, true, nil
}

// Put records the step result. A concurrent or replayed writer for the
// same (run, step) is a no-op: the first durably written result wins.
func (r *StepRepository) Put(ctx context.Context, runID uuid.UUID, name string, result json.RawMessage) error {
	query := `
		INSERT INTO workflow_steps (run_id, step_name, result, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, step_name) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, runID, name, []byte(result), time.Now())
	if err != nil {
		return fmt.Errorf("failed to put workflow step: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes step results from runs older than the cutoff.
func (r *StepRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge workflow steps: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
