package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulse/internal/models"
)

// TaskRepository handles versioned task storage keyed by
// (user_id, content_key), where content_key is the normalized content.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create appends a new version for the task's logical key. ContentKey is
// derived from the content if unset.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if t.ContentKey == "" {
		t.ContentKey = models.NormalizeContent(t.Content)
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		var next int
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM tasks WHERE user_id = $1 AND content_key = $2`,
			t.UserID, t.ContentKey,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute next version: %w", err)
		}

		var completedAt sql.NullTime
		if t.CompletedAt != nil {
			completedAt = sql.NullTime{Time: *t.CompletedAt, Valid: true}
		}

		query := `
			INSERT INTO tasks (user_id, content_key, version, content, status, commitment_entry_id, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`
		err = r.db.QueryRowContext(ctx, query,
			t.UserID,
			t.ContentKey,
			next,
			t.Content,
			t.Status,
			t.CommitmentEntryID,
			time.Now(),
			completedAt,
		).Scan(&t.CreatedAt)

		if err == nil {
			t.Version = next
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("failed to create task: %w", err)
		}
	}

	return fmt.Errorf("task (%s, %q): %w", t.UserID, t.ContentKey, ErrVersionConflict)
}

// GetCurrent returns the max-version row for the logical key.
func (r *TaskRepository) GetCurrent(ctx context.Context, userID uuid.UUID, contentKey string) (*models.Task, error) {
	query := `
		SELECT user_id, content_key, version, content, status, commitment_entry_id, created_at, completed_at
		FROM tasks
		WHERE user_id = $1 AND content_key = $2
		ORDER BY version DESC
		LIMIT 1
	`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, userID, contentKey))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task (%s, %q): %w", userID, contentKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// GetCurrentByUser returns the current version of every task for the user.
func (r *TaskRepository) GetCurrentByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	query := `
		SELECT DISTINCT ON (content_key)
			user_id, content_key, version, content, status, commitment_entry_id, created_at, completed_at
		FROM tasks
		WHERE user_id = $1
		ORDER BY content_key, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// GetActiveByUser returns current tasks in planned/started/paused status.
func (r *TaskRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	tasks, err := r.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := tasks[:0]
	for _, t := range tasks {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	return active, nil
}

// GetCompletedSince returns current tasks completed at or after the cutoff.
func (r *TaskRepository) GetCompletedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*models.Task, error) {
	tasks, err := r.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var completed []*models.Task
	for _, t := range tasks {
		if t.Status == models.TaskCompleted && t.CompletedAt != nil && !t.CompletedAt.Before(cutoff) {
			completed = append(completed, t)
		}
	}
	return completed, nil
}

// GetHistory returns all versions for the logical key ordered by version.
func (r *TaskRepository) GetHistory(ctx context.Context, userID uuid.UUID, contentKey string) ([]*models.Task, error) {
	query := `
		SELECT user_id, content_key, version, content, status, commitment_entry_id, created_at, completed_at
		FROM tasks
		WHERE user_id = $1 AND content_key = $2
		ORDER BY version ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, contentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var history []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		history = append(history, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task history: %w", err)
	}

	return history, nil
}

// Transition appends a new version with the requested status, enforcing
// the task transition table. Completing a task stamps CompletedAt.
func (r *TaskRepository) Transition(ctx context.Context, userID uuid.UUID, contentKey string, next models.TaskStatus) (*models.Task, error) {
	current, err := r.GetCurrent(ctx, userID, contentKey)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateTaskTransition(current.Status, next); err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = next
	if next == models.TaskCompleted {
		now := time.Now()
		updated.CompletedAt = &now
	}
	if err := r.Create(ctx, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// HasOpenTaskForCommitment reports whether any current, non-completed task
// references the given commitment.
func (r *TaskRepository) HasOpenTaskForCommitment(ctx context.Context, userID uuid.UUID, commitmentEntryID int64) (bool, error) {
	tasks, err := r.GetCurrentByUser(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, t := range tasks {
		if t.CommitmentEntryID != nil && *t.CommitmentEntryID == commitmentEntryID && t.Status != models.TaskCompleted {
			return true, nil
		}
	}
	return false, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var completedAt sql.NullTime

	err := row.Scan(
		&t.UserID,
		&t.ContentKey,
		&t.Version,
		&t.Content,
		&t.Status,
		&t.CommitmentEntryID,
		&t.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}

	return t, nil
}
