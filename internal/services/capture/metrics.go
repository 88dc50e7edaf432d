package capture

import (
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

// Health bands for the composite completion rate.
const (
	healthThriving = "thriving"
	healthSteady   = "steady"
	healthWobbly   = "wobbly"
	healthDormant  = "dormant"
)

// ComputeMetrics derives commitment analytics from the user's entry
// history. Pure function; the result overwrites the metrics blob on the
// commitment's current row and can always be recomputed.
func ComputeMetrics(c *models.Commitment, entries []*models.Entry, now time.Time) models.CommitmentMetrics {
	var completions []time.Time
	references := 0

	for _, e := range entries {
		if e.CommitmentID == nil || *e.CommitmentID != c.OriginEntryID {
			continue
		}
		references++
		if e.EventType != nil && (*e.EventType == models.EventTaskFinish || *e.EventType == models.EventCommitmentComplete) {
			completions = append(completions, e.CreatedAt)
		}
	}

	m := models.CommitmentMetrics{
		Streak:         streakDays(completions, now),
		CompletionRate: completionRate(c, len(completions), now),
		Engagement:     clamp01(float64(recentCount(completions, now, 30*24*time.Hour)) / 10),
		Momentum:       clamp01(float64(recentCount(completions, now, 7*24*time.Hour)) / 7),
	}
	m.Consistency = clamp01((m.CompletionRate + m.Momentum) / 2)
	m.Health = healthLabel(m.CompletionRate)

	if references == 0 {
		m.Health = healthDormant
	}
	return m
}

// streakDays counts consecutive days ending today with at least one
// completion.
func streakDays(completions []time.Time, now time.Time) int {
	if len(completions) == 0 {
		return 0
	}
	days := make(map[string]bool, len(completions))
	for _, ts := range completions {
		days[ts.UTC().Format("2006-01-02")] = true
	}

	streak := 0
	for d := now.UTC(); days[d.Format("2006-01-02")]; d = d.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

// completionRate is completions over the periods the horizon expected
// since the commitment was made.
func completionRate(c *models.Commitment, completions int, now time.Time) float64 {
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		age = 0
	}

	var expected float64
	switch c.Horizon.Type {
	case models.HorizonDaily:
		expected = age.Hours() / 24
	case models.HorizonWeekly:
		expected = age.Hours() / (24 * 7)
	case models.HorizonMonthly:
		expected = age.Hours() / (24 * 30)
	default:
		// one-shot or open-ended: a single completion counts as done
		expected = 1
	}
	if expected < 1 {
		expected = 1
	}
	return clamp01(float64(completions) / expected)
}

func recentCount(times []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, ts := range times {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func healthLabel(rate float64) string {
	switch {
	case rate > 0.8:
		return healthThriving
	case rate > 0.5:
		return healthSteady
	case rate > 0.2:
		return healthWobbly
	default:
		return healthDormant
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
