package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const alarmKey = "feed_alarms"

// ErrNoAlarm is returned by Next when the user has no armed alarm.
var ErrNoAlarm = errors.New("no alarm armed")

// AlarmQueue is the single-slot per-user timer backed by a shared Redis
// sorted set keyed by due time. Each user holds at most one slot; arming
// uses ZADD LT so re-arming can only move an existing alarm earlier,
// never later.
type AlarmQueue struct {
	rdb *redis.Client
}

func NewAlarmQueue(rdb *redis.Client) *AlarmQueue {
	return &AlarmQueue{rdb: rdb}
}

// Arm schedules the user's alarm for at. If an earlier alarm is already
// armed it stays; earliest wins.
func (q *AlarmQueue) Arm(ctx context.Context, userID uuid.UUID, at time.Time) error {
	err := q.rdb.ZAddLT(ctx, alarmKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: userID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to arm alarm: %w", err)
	}
	return nil
}

// Due claims and returns up to limit users whose alarms have come due.
// Claiming removes the member, so concurrent pollers each fire a given
// alarm at most once.
func (q *AlarmQueue) Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := q.rdb.ZRangeByScore(ctx, alarmKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due alarms: %w", err)
	}

	var due []uuid.UUID
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, alarmKey, m).Result()
		if err != nil {
			return due, fmt.Errorf("failed to claim alarm: %w", err)
		}
		if removed == 0 {
			// another poller claimed it first
			continue
		}
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		due = append(due, id)
	}
	return due, nil
}

// Next returns when the user's alarm will fire.
func (q *AlarmQueue) Next(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	score, err := q.rdb.ZScore(ctx, alarmKey, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNoAlarm
		}
		return time.Time{}, fmt.Errorf("failed to read alarm: %w", err)
	}
	return time.UnixMilli(int64(score)), nil
}

// Clear disarms the user's alarm if one is set.
func (q *AlarmQueue) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := q.rdb.ZRem(ctx, alarmKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to clear alarm: %w", err)
	}
	return nil
}
