package scheduler

import (
	"math"
	"time"
)

const (
	// MinInterval and MaxInterval bound every computed refresh interval.
	MinInterval = 5 * time.Minute
	MaxInterval = 48 * time.Hour

	backoffThreshold = 0.05
	backoffStep      = 0.01
	maxBackoffShift  = 3
)

// intervalBand maps a score range to an interval range. Within a band the
// interval interpolates linearly: a higher score yields a shorter wait.
type intervalBand struct {
	scoreLow, scoreHigh float64
	longest, shortest   time.Duration
}

var intervalBands = []intervalBand{
	{0.8, 1.0, 15 * time.Minute, 5 * time.Minute},
	{0.5, 0.8, 60 * time.Minute, 30 * time.Minute},
	{0.2, 0.5, 6 * time.Hour, 2 * time.Hour},
	{0.1, 0.2, 24 * time.Hour, 12 * time.Hour},
	{0.0, 0.1, 48 * time.Hour, 24 * time.Hour},
}

// RefreshInterval maps an activity score to how long to wait before the
// next regeneration. Monotonically non-increasing in score, always within
// [MinInterval, MaxInterval]. Scores below 0.05 apply an exponential
// backoff multiplier capped at 8x.
func RefreshInterval(score float64) time.Duration {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	var interval time.Duration
	for _, band := range intervalBands {
		if score > band.scoreLow || band.scoreLow == 0 {
			frac := (score - band.scoreLow) / (band.scoreHigh - band.scoreLow)
			interval = band.longest - time.Duration(frac*float64(band.longest-band.shortest))
			break
		}
	}

	if score < backoffThreshold {
		shift := int(math.Floor((backoffThreshold - score) / backoffStep))
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}
		interval *= time.Duration(1 << shift)
	}

	if interval < MinInterval {
		return MinInterval
	}
	if interval > MaxInterval {
		return MaxInterval
	}
	return interval
}
