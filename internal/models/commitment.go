package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a status change violates the
// transition table. The caller's state is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// CommitmentStrength expresses how firmly the user committed.
type CommitmentStrength string

const (
	StrengthWeak   CommitmentStrength = "weak"
	StrengthMedium CommitmentStrength = "medium"
	StrengthStrong CommitmentStrength = "strong"
)

// CommitmentStatus is the lifecycle status of a commitment.
type CommitmentStatus string

const (
	CommitmentConfirmed    CommitmentStatus = "confirmed"
	CommitmentActive       CommitmentStatus = "active"
	CommitmentCompleted    CommitmentStatus = "completed"
	CommitmentRetired      CommitmentStatus = "retired"
	CommitmentRenegotiated CommitmentStatus = "renegotiated"
)

var commitmentTransitions = map[CommitmentStatus][]CommitmentStatus{
	CommitmentConfirmed:    {CommitmentActive},
	CommitmentActive:       {CommitmentCompleted, CommitmentRetired, CommitmentRenegotiated},
	CommitmentRenegotiated: {CommitmentActive},
	CommitmentCompleted:    {},
	CommitmentRetired:      {},
}

// CanTransitionTo reports whether the transition table allows s -> next.
func (s CommitmentStatus) CanTransitionTo(next CommitmentStatus) bool {
	for _, allowed := range commitmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateCommitmentTransition returns ErrInvalidTransition for a disallowed edge.
func ValidateCommitmentTransition(from, to CommitmentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("commitment %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// HorizonType classifies the structured time horizon of a commitment.
type HorizonType string

const (
	HorizonDate       HorizonType = "date"
	HorizonDaily      HorizonType = "daily"
	HorizonWeekly     HorizonType = "weekly"
	HorizonMonthly    HorizonType = "monthly"
	HorizonContinuous HorizonType = "continuous"
	HorizonMaintain   HorizonType = "maintain"
)

// Horizon is the structured time horizon: a type plus an optional value
// (a date for HorizonDate, a cadence count for the recurring types).
type Horizon struct {
	Type  HorizonType `json:"type"`
	Value string      `json:"value,omitempty"`
}

// CommitmentMetrics is derivative analytics mutated in place on the current
// row. It is deliberately not versioned: it can always be recomputed from
// the entry history, so it is not authoritative state.
type CommitmentMetrics struct {
	Streak         int     `json:"streak"`
	CompletionRate float64 `json:"completion_rate"`
	Consistency    float64 `json:"consistency"`
	Momentum       float64 `json:"momentum"`
	Engagement     float64 `json:"engagement"`
	Health         string  `json:"health"`
}

// Commitment is an append-only versioned entity keyed by
// (user_id, origin_entry_id). Each write creates a new row with
// version = max(version)+1; current state is the max-version row.
type Commitment struct {
	UserID        uuid.UUID          `json:"user_id"`
	OriginEntryID int64              `json:"origin_entry_id"`
	Version       int                `json:"version"`
	Content       string             `json:"content"`
	Strength      CommitmentStrength `json:"strength"`
	HorizonText   string             `json:"horizon_text,omitempty"`
	Horizon       Horizon            `json:"horizon"`
	Status        CommitmentStatus   `json:"status"`
	Metrics       CommitmentMetrics  `json:"metrics"`
	CreatedAt     time.Time          `json:"created_at"`
}

// IsOpen reports whether the commitment can still receive work.
func (c *Commitment) IsOpen() bool {
	return c.Status == CommitmentConfirmed || c.Status == CommitmentActive ||
		c.Status == CommitmentRenegotiated
}
