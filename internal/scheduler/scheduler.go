package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/queue"
)

const (
	stalenessFactor   = 1.5
	lowScoreOverride  = 0.1
	lowScoreFeedAge   = 24 * time.Hour
	inactiveThreshold = 7 * 24 * time.Hour
	inactiveDefer     = 48 * time.Hour
)

// ActivityScorer supplies the engagement score and records captures.
type ActivityScorer interface {
	Record(ctx context.Context, userID uuid.UUID) error
	Score(ctx context.Context, userID uuid.UUID) (float64, error)
	LastActivityAt(ctx context.Context, userID uuid.UUID) (time.Time, error)
}

// Alarms is the single-slot per-user timer.
type Alarms interface {
	Arm(ctx context.Context, userID uuid.UUID, at time.Time) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Scheduler decides when each user's feed is regenerated. Captures arm an
// alarm at the activity-derived interval; firing alarms pass through a
// staleness gate before a regeneration job is enqueued.
type Scheduler struct {
	activity ActivityScorer
	alarms   Alarms
	schedule database.ScheduleRepositoryInterface
	feeds    database.FeedRepositoryInterface
	jobs     queue.JobQueue
	logger   *zap.Logger
	now      func() time.Time
}

func New(
	activity ActivityScorer,
	alarms Alarms,
	schedule database.ScheduleRepositoryInterface,
	feeds database.FeedRepositoryInterface,
	jobs queue.JobQueue,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		activity: activity,
		alarms:   alarms,
		schedule: schedule,
		feeds:    feeds,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
	}
}

// OnCapture records the activity, marks the feed stale and arms the alarm
// at the recomputed interval. Arming is earliest-wins, so a burst of
// captures cannot push an already-armed alarm later.
func (s *Scheduler) OnCapture(ctx context.Context, userID uuid.UUID) error {
	if err := s.activity.Record(ctx, userID); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}

	score, err := s.activity.Score(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to compute activity score: %w", err)
	}

	if err := s.schedule.SetNeedsRegeneration(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to mark regeneration pending: %w", err)
	}

	interval := RefreshInterval(score)
	fireAt := s.now().Add(interval)
	if err := s.alarms.Arm(ctx, userID, fireAt); err != nil {
		return fmt.Errorf("failed to arm alarm: %w", err)
	}

	s.logger.Debug("alarm_armed",
		zap.String("user_id", userID.String()),
		zap.Float64("score", score),
		zap.Duration("interval", interval))
	return nil
}

// OnManualRefresh enqueues a regeneration immediately, bypassing the gate.
func (s *Scheduler) OnManualRefresh(ctx context.Context, userID uuid.UUID) (*queue.Job, error) {
	job := queue.NewJob(queue.JobTypeRegenerateFeed, userID, queue.ReasonManual)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue regeneration job: %w", err)
	}
	if err := s.schedule.SetNeedsRegeneration(ctx, userID, false); err != nil {
		s.logger.Warn("clear_regeneration_flag_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	return job, nil
}

// OnAlarmFire evaluates the staleness gate for a fired alarm and either
// enqueues a regeneration job or re-arms the alarm for later.
func (s *Scheduler) OnAlarmFire(ctx context.Context, userID uuid.UUID) error {
	needs, err := s.schedule.NeedsRegeneration(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read regeneration flag: %w", err)
	}
	if !needs {
		s.logger.Debug("alarm_noop", zap.String("user_id", userID.String()))
		return nil
	}

	score, err := s.activity.Score(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to compute activity score: %w", err)
	}

	now := s.now()
	input := GateInput{Score: score, Now: now}

	latest, err := s.feeds.GetLatest(ctx, userID)
	switch {
	case err == nil:
		input.HasFeed = true
		input.LastFeedAt = latest.CreatedAt
	case errors.Is(err, database.ErrNotFound):
		// first feed for this user
	default:
		return fmt.Errorf("failed to load latest feed: %w", err)
	}

	if lastActive, aerr := s.activity.LastActivityAt(ctx, userID); aerr == nil {
		input.LastActivityAt = lastActive
	}

	decision := EvaluateGate(input)
	if !decision.Regenerate {
		if err := s.alarms.Arm(ctx, userID, now.Add(decision.Defer)); err != nil {
			return fmt.Errorf("failed to re-arm alarm: %w", err)
		}
		s.logger.Info("regeneration_deferred",
			zap.String("user_id", userID.String()),
			zap.Float64("score", score),
			zap.Duration("defer", decision.Defer))
		return nil
	}

	if err := s.schedule.SetNeedsRegeneration(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to clear regeneration flag: %w", err)
	}

	job := queue.NewJob(queue.JobTypeRegenerateFeed, userID, queue.ReasonAlarm)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		// leave the user schedulable rather than silently stuck
		if serr := s.schedule.SetNeedsRegeneration(ctx, userID, true); serr != nil {
			s.logger.Error("restore_regeneration_flag_failed",
				zap.String("user_id", userID.String()),
				zap.Error(serr))
		}
		if aerr := s.alarms.Arm(ctx, userID, now.Add(RefreshInterval(score))); aerr != nil {
			s.logger.Error("rearm_after_enqueue_failure_failed",
				zap.String("user_id", userID.String()),
				zap.Error(aerr))
		}
		return fmt.Errorf("failed to enqueue regeneration job: %w", err)
	}

	s.logger.Info("regeneration_enqueued",
		zap.String("user_id", userID.String()),
		zap.String("job_id", job.ID.String()),
		zap.Float64("score", score))
	return nil
}

// Rearm schedules the next alarm after a completed regeneration.
func (s *Scheduler) Rearm(ctx context.Context, userID uuid.UUID) error {
	score, err := s.activity.Score(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to compute activity score: %w", err)
	}
	if err := s.alarms.Arm(ctx, userID, s.now().Add(RefreshInterval(score))); err != nil {
		return fmt.Errorf("failed to arm alarm: %w", err)
	}
	return nil
}

// GateInput is everything the staleness gate looks at.
type GateInput struct {
	Score          float64
	HasFeed        bool
	LastFeedAt     time.Time
	LastActivityAt time.Time
	Now            time.Time
}

// GateDecision says whether to regenerate now; when not, Defer is how long
// to wait before re-evaluating.
type GateDecision struct {
	Regenerate bool
	Defer      time.Duration
}

// EvaluateGate is the pure staleness/inactivity gate. A user with no feed
// yet always regenerates. Very low scores only regenerate against a feed
// older than a day, and long-inactive near-zero users are deferred two
// days outright.
func EvaluateGate(in GateInput) GateDecision {
	if !in.HasFeed {
		return GateDecision{Regenerate: true}
	}

	inactive := !in.LastActivityAt.IsZero() && in.Now.Sub(in.LastActivityAt) > inactiveThreshold
	if in.Score < backoffThreshold && inactive {
		return GateDecision{Defer: inactiveDefer}
	}

	feedAge := in.Now.Sub(in.LastFeedAt)
	if in.Score < lowScoreOverride {
		if feedAge > lowScoreFeedAge {
			return GateDecision{Regenerate: true}
		}
		return GateDecision{Defer: lowScoreFeedAge - feedAge}
	}

	interval := RefreshInterval(in.Score)
	threshold := time.Duration(float64(interval) * stalenessFactor)
	if feedAge > threshold {
		return GateDecision{Regenerate: true}
	}
	return GateDecision{Defer: threshold - feedAge}
}
