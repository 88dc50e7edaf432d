package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known signal keys produced by LLM analysis of an entry.
const (
	SignalActionability   = "actionability"
	SignalHabitLikelihood = "habit_likelihood"
	SignalEnergy          = "energy"
)

// Signal is a scalar LLM-derived feature of an entry, versioned per
// (user_id, entry_id, key).
type Signal struct {
	UserID     uuid.UUID `json:"user_id"`
	EntryID    int64     `json:"entry_id"`
	Key        string    `json:"key"`
	Version    int       `json:"version"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignalReading is one signal observation as emitted by generation,
// before versioning and ownership are attached.
type SignalReading struct {
	EntryID    int64   `json:"entry_id"`
	Key        string  `json:"key"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the reading names a known key, a real entry and
// in-range values. Invalid readings are dropped, never stored.
func (sr SignalReading) Valid() bool {
	switch sr.Key {
	case SignalActionability, SignalHabitLikelihood, SignalEnergy:
	default:
		return false
	}
	if sr.EntryID <= 0 {
		return false
	}
	return sr.Value >= 0 && sr.Value <= 1 && sr.Confidence >= 0 && sr.Confidence <= 1
}
