package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	TaskPlanned   TaskStatus = "planned"
	TaskStarted   TaskStatus = "started"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskAbandoned TaskStatus = "abandoned"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPlanned:   {TaskStarted, TaskCompleted, TaskAbandoned},
	TaskStarted:   {TaskPaused, TaskCompleted, TaskAbandoned},
	TaskPaused:    {TaskStarted, TaskCompleted, TaskAbandoned},
	TaskCompleted: {},
	TaskAbandoned: {},
}

// CanTransitionTo reports whether the transition table allows s -> next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTaskTransition returns ErrInvalidTransition for a disallowed edge.
func ValidateTaskTransition(from, to TaskStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("task %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// Task is an append-only versioned entity keyed by (user_id, content_key).
// The normalized content acts as the stable identity; renaming a task's
// content therefore breaks version linkage. That fragility is deliberate:
// the dedup pipeline relies on content identity, and a synthetic key would
// change its semantics.
type Task struct {
	UserID            uuid.UUID  `json:"user_id"`
	ContentKey        string     `json:"content_key"`
	Version           int        `json:"version"`
	Content           string     `json:"content"`
	Status            TaskStatus `json:"status"`
	CommitmentEntryID *int64     `json:"commitment_entry_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// IsActive reports whether the task counts as open work for dedup purposes.
func (t *Task) IsActive() bool {
	return t.Status == TaskPlanned || t.Status == TaskStarted || t.Status == TaskPaused
}

// NormalizeContent lowercases, trims and collapses internal whitespace.
// It is the shared normalization for task identity and content dedup.
func NormalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
