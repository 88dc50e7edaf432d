package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepPurger removes memoized workflow step results older than a cutoff.
type StepPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GarbageCollector periodically purges step memos from completed workflow
// runs. Memos only need to outlive queue redelivery, so a retention of a
// few days is ample.
type GarbageCollector struct {
	purger    StepPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a new garbage collector.
func NewGarbageCollector(purger StepPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start runs the GC loop until ctx is cancelled.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := gc.collect(ctx); err != nil {
				gc.logger.Error("workflow_step_gc_failed", zap.Error(err))
			}
		}
	}
}

// collect purges step memos older than retention.
func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.purger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	n, err := gc.purger.PurgeOlderThan(ctx, time.Now().Add(-gc.retention))
	if err != nil {
		return fmt.Errorf("step purge: %w", err)
	}
	if n > 0 {
		gc.logger.Info("workflow_step_gc_purged",
			zap.Int64("count", n),
			zap.Duration("retention", gc.retention))
	}
	return nil
}
