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

// EntryRepository handles capture storage. Entries are append-only; the
// bigserial id doubles as the watermark ordering for prompt assembly.
type EntryRepository struct {
	db *DB
}

// NewEntryRepository creates a new entry repository.
func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create inserts a new entry and fills in its assigned id and timestamp.
func (r *EntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO entries (user_id, text, root_id, parent_id, task_key, commitment_id, event_type, action_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	var actionContextJSON []byte
	if entry.ActionContext != nil {
		var err error
		actionContextJSON, err = json.Marshal(entry.ActionContext)
		if err != nil {
			return fmt.Errorf("failed to marshal action context: %w", err)
		}
	}

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.Text,
		entry.RootID,
		entry.ParentID,
		entry.TaskKey,
		entry.CommitmentID,
		entry.EventType,
		actionContextJSON,
		time.Now(),
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	return nil
}

// GetByID retrieves a single entry.
func (r *EntryRepository) GetByID(ctx context.Context, userID uuid.UUID, id int64) (*models.Entry, error) {
	query := `
		SELECT id, user_id, text, root_id, parent_id, task_key, commitment_id, event_type, action_context, created_at
		FROM entries
		WHERE user_id = $1 AND id = $2
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, userID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// ListByUser returns all entries for a user ordered by id ascending.
func (r *EntryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Entry, error) {
	query := `
		SELECT id, user_id, text, root_id, parent_id, task_key, commitment_id, event_type, action_context, created_at
		FROM entries
		WHERE user_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	entry := &models.Entry{}
	var actionContextJSON []byte
	var eventType sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Text,
		&entry.RootID,
		&entry.ParentID,
		&entry.TaskKey,
		&entry.CommitmentID,
		&eventType,
		&actionContextJSON,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if eventType.Valid {
		et := models.EventType(eventType.String)
		entry.EventType = &et
	}
	if len(actionContextJSON) > 0 {
		entry.ActionContext = &models.ActionContext{}
		if err := json.Unmarshal(actionContextJSON, entry.ActionContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action context: %w", err)
		}
	}

	return entry, nil
}
