package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/models"
)

const (
	scoreCacheTTL       = time.Hour
	scoreCacheKeyPrefix = "activity_score:"
)

// Score component weights. Recency gets the smallest share so a single
// capture after a long absence does not look like heavy engagement.
const (
	weight24h     = 0.4
	weight7d      = 0.3
	weight30d     = 0.2
	weightRecency = 0.1

	norm24h = 10
	norm7d  = 30
	norm30d = 100
)

// Tracker maintains per-user activity records and computes the engagement
// score that drives refresh scheduling. Scores are cached in Redis for an
// hour; recording activity invalidates the cached score.
type Tracker struct {
	repo   database.ActivityRepositoryInterface
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker. rdb may be nil, in which case score
// caching is disabled.
func NewTracker(repo database.ActivityRepositoryInterface, rdb *redis.Client, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		rdb:    rdb,
		logger: logger,
		now:    time.Now,
	}
}

// Record registers a capture for the user and refreshes the rolling
// counters. The cached score is dropped so the next read reflects it.
func (t *Tracker) Record(ctx context.Context, userID uuid.UUID) error {
	now := t.now()

	rec, err := t.repo.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to load activity record: %w", err)
		}
		rec = &models.ActivityRecord{UserID: userID}
	}

	rec.CaptureTimes = append(rec.CaptureTimes, now)
	rec.LastActivityAt = now
	rec.UpdatedAt = now
	rec.Prune(now)

	if err := t.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("failed to store activity record: %w", err)
	}

	if t.rdb != nil {
		if err := t.rdb.Del(ctx, scoreCacheKeyPrefix+userID.String()).Err(); err != nil {
			t.logger.Warn("activity_score_cache_invalidate_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// RecordView registers a feed view. Views refresh recency but do not
// count toward the rolling capture windows.
func (t *Tracker) RecordView(ctx context.Context, userID uuid.UUID) error {
	now := t.now()

	rec, err := t.repo.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to load activity record: %w", err)
		}
		rec = &models.ActivityRecord{UserID: userID}
	}

	rec.LastActivityAt = now
	rec.UpdatedAt = now
	rec.Prune(now)

	if err := t.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("failed to store activity record: %w", err)
	}

	if t.rdb != nil {
		if err := t.rdb.Del(ctx, scoreCacheKeyPrefix+userID.String()).Err(); err != nil {
			t.logger.Warn("activity_score_cache_invalidate_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// Score returns the user's engagement score in [0,1]. A user with no
// recorded activity scores 0.
func (t *Tracker) Score(ctx context.Context, userID uuid.UUID) (float64, error) {
	cacheKey := scoreCacheKeyPrefix + userID.String()

	if t.rdb != nil {
		cached, err := t.rdb.Get(ctx, cacheKey).Result()
		if err == nil {
			if score, perr := strconv.ParseFloat(cached, 64); perr == nil {
				return score, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			t.logger.Warn("activity_score_cache_read_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	rec, err := t.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, database.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load activity record: %w", err)
	}

	now := t.now()
	rec.Prune(now)
	score := computeScore(rec, now)

	if t.rdb != nil {
		if err := t.rdb.Set(ctx, cacheKey, strconv.FormatFloat(score, 'f', -1, 64), scoreCacheTTL).Err(); err != nil {
			t.logger.Warn("activity_score_cache_write_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	return score, nil
}

// LastActivityAt returns the user's last capture time, zero if the user
// has never been active.
func (t *Tracker) LastActivityAt(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	rec, err := t.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, database.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to load activity record: %w", err)
	}
	return rec.LastActivityAt, nil
}

// computeScore blends normalized capture counts over three windows with a
// recency term. Pure function of the record and the clock.
func computeScore(rec *models.ActivityRecord, now time.Time) float64 {
	score := weight24h*capRatio(rec.Count24h, norm24h) +
		weight7d*capRatio(rec.Count7d, norm7d) +
		weight30d*capRatio(rec.Count30d, norm30d) +
		weightRecency*recencyFactor(rec.LastActivityAt, now)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func capRatio(count, norm int) float64 {
	r := float64(count) / float64(norm)
	if r > 1 {
		return 1
	}
	return r
}

// recencyFactor is 1.0 within the first hour since the last capture and
// decays linearly to 0 at seven days.
func recencyFactor(last, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed <= time.Hour {
		return 1
	}
	horizon := 7 * 24 * time.Hour
	if elapsed >= horizon {
		return 0
	}
	return 1 - float64(elapsed-time.Hour)/float64(horizon-time.Hour)
}
