package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultPollBatch    = 100

	// alarmRetryDelay re-arms a claimed alarm whose handler failed.
	// Claiming removes the member from the queue, so without this the
	// user would have no alarm until their next capture.
	alarmRetryDelay = 5 * time.Minute
)

// AlarmSource yields users whose regeneration alarms have come due.
// Due claims by removal; Arm puts a claimed alarm back when handling
// fails, with earliest-wins semantics.
type AlarmSource interface {
	Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error)
	Arm(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// AlarmHandler decides what a fired alarm means for one user.
type AlarmHandler interface {
	OnAlarmFire(ctx context.Context, userID uuid.UUID) error
}

// AlarmPoller drains due alarms on a fixed tick and hands each one to
// the scheduler. Claiming happens inside the alarm source, so running
// several pollers is safe.
type AlarmPoller struct {
	alarms   AlarmSource
	handler  AlarmHandler
	interval time.Duration
	batch    int64
	logger   *zap.Logger
}

func NewAlarmPoller(alarms AlarmSource, handler AlarmHandler, interval time.Duration, logger *zap.Logger) *AlarmPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &AlarmPoller{
		alarms:   alarms,
		handler:  handler,
		interval: interval,
		batch:    defaultPollBatch,
		logger:   logger,
	}
}

// Start runs the poll loop until the context is cancelled.
func (p *AlarmPoller) Start(ctx context.Context) {
	p.logger.Info("alarm_poller_started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("alarm_poller_stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *AlarmPoller) poll(ctx context.Context) {
	due, err := p.alarms.Due(ctx, time.Now(), p.batch)
	if err != nil {
		p.logger.Error("alarm_poll_failed", zap.Error(err))
		return
	}

	for _, userID := range due {
		if err := p.handler.OnAlarmFire(ctx, userID); err != nil {
			p.logger.Error("alarm_fire_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			// The claim consumed the user's only alarm. Put one back so
			// a transient failure cannot leave the feed stale forever.
			if armErr := p.alarms.Arm(ctx, userID, time.Now().Add(alarmRetryDelay)); armErr != nil {
				p.logger.Error("alarm_rearm_failed",
					zap.String("user_id", userID.String()),
					zap.Error(armErr))
			}
		}
	}

	if len(due) > 0 {
		p.logger.Debug("alarms_fired", zap.Int("count", len(due)))
	}
}
