package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType describes a state-transition side effect carried by a capture.
type EventType string

const (
	EventTaskStart          EventType = "task_start"
	EventTaskPause          EventType = "task_pause"
	EventTaskFinish         EventType = "task_finish"
	EventTaskAbandon        EventType = "task_abandon"
	EventCommitmentComplete EventType = "commitment_complete"
	EventCommitmentRetire   EventType = "commitment_retire"
)

// ActionContext records which feed item or action produced a capture.
type ActionContext struct {
	FeedVersion int64  `json:"feed_version,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	Action      string `json:"action,omitempty"`
}

// Entry is a raw user capture. Entries are immutable once written; ids are
// assigned by the store in strictly increasing order, which is what makes
// the feed watermark meaningful.
type Entry struct {
	ID            int64          `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	Text          string         `json:"text"`
	RootID        *int64         `json:"root_id,omitempty"`
	ParentID      *int64         `json:"parent_id,omitempty"`
	TaskKey       *string        `json:"task_key,omitempty"`
	CommitmentID  *int64         `json:"commitment_id,omitempty"` // origin entry id of the linked commitment
	EventType     *EventType     `json:"event_type,omitempty"`
	ActionContext *ActionContext `json:"action_context,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
