package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityWindow is how long capture timestamps are retained.
const ActivityWindow = 30 * 24 * time.Hour

// ActivityRecord holds per-user engagement counters. Mutable, not
// versioned: it exists purely to drive scheduling.
type ActivityRecord struct {
	UserID         uuid.UUID   `json:"user_id"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CaptureTimes   []time.Time `json:"capture_times"`
	Count24h       int         `json:"count_24h"`
	Count7d        int         `json:"count_7d"`
	Count30d       int         `json:"count_30d"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Prune drops capture timestamps older than the rolling window and
// recomputes the 24h/7d/30d counts relative to now.
func (a *ActivityRecord) Prune(now time.Time) {
	cutoff := now.Add(-ActivityWindow)
	kept := a.CaptureTimes[:0]
	for _, ts := range a.CaptureTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	a.CaptureTimes = kept

	a.Count24h = 0
	a.Count7d = 0
	a.Count30d = len(kept)
	day := now.Add(-24 * time.Hour)
	week := now.Add(-7 * 24 * time.Hour)
	for _, ts := range kept {
		if ts.After(day) {
			a.Count24h++
		}
		if ts.After(week) {
			a.Count7d++
		}
	}
}
