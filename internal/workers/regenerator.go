package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/feed"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/internal/prompt"
	"github.com/pulsefeed/pulse/internal/queue"
	"github.com/pulsefeed/pulse/internal/services/ai"
	"github.com/pulsefeed/pulse/internal/validation"
	"github.com/pulsefeed/pulse/internal/workflow"
)

const (
	defaultEnergyLevel = 0.5
	completionLookback = 24 * time.Hour
)

// SchedulerControl is the slice of the scheduler the worker drives.
type SchedulerControl interface {
	Rearm(ctx context.Context, userID uuid.UUID) error
}

// FeedRegenerator executes feed regeneration jobs as durable workflows.
// Each job ID is a workflow run ID: a redelivered job replays memoized
// steps instead of repeating work, so a crash between the LLM call and
// the snapshot write cannot double-spend tokens.
type FeedRegenerator struct {
	provider    ai.Provider
	entries     database.EntryRepositoryInterface
	tasks       database.TaskRepositoryInterface
	commitments database.CommitmentRepositoryInterface
	signals     database.SignalRepositoryInterface
	feeds       database.FeedRepositoryInterface
	schedule    database.ScheduleRepositoryInterface
	steps       database.StepRepositoryInterface
	scheduler   SchedulerControl
	jobQueue    queue.JobQueue
	prices      *feed.PriceTable
	model       string
	logger      *zap.Logger
	now         func() time.Time
}

// NewFeedRegenerator creates a new feed regenerator
func NewFeedRegenerator(
	provider ai.Provider,
	entries database.EntryRepositoryInterface,
	tasks database.TaskRepositoryInterface,
	commitments database.CommitmentRepositoryInterface,
	signals database.SignalRepositoryInterface,
	feeds database.FeedRepositoryInterface,
	schedule database.ScheduleRepositoryInterface,
	steps database.StepRepositoryInterface,
	scheduler SchedulerControl,
	jobQueue queue.JobQueue,
	prices *feed.PriceTable,
	model string,
	logger *zap.Logger,
) *FeedRegenerator {
	return &FeedRegenerator{
		provider:    provider,
		entries:     entries,
		tasks:       tasks,
		commitments: commitments,
		signals:     signals,
		feeds:       feeds,
		schedule:    schedule,
		steps:       steps,
		scheduler:   scheduler,
		jobQueue:    jobQueue,
		prices:      prices,
		model:       model,
		logger:      logger,
		now:         time.Now,
	}
}

// liveBundle is the memoized result of the context-fetch step.
type liveBundle struct {
	Live    *models.LiveContext `json:"live"`
	Signals []*models.Signal    `json:"signals"`
}

// promptBundle is the memoized result of the prompt-build step.
type promptBundle struct {
	Prefix       string `json:"prefix"`
	Suffix       string `json:"suffix"`
	PrefixTokens int    `json:"prefix_tokens"`
	SuffixTokens int    `json:"suffix_tokens"`
	Watermark    int64  `json:"watermark"`
}

// generationOutcome is the memoized result of the LLM step.
type generationOutcome struct {
	Items    []models.GeneratedItem `json:"items"`
	Signals  []models.SignalReading `json:"signals"`
	Usage    models.Usage           `json:"usage"`
	Fallback bool                   `json:"fallback"`
}

// Regenerate runs the full regeneration workflow for one job.
func (r *FeedRegenerator) Regenerate(ctx context.Context, job *queue.Job) error {
	userID := job.UserID
	run := workflow.NewRun(job.ID, r.steps, r.logger)
	now := r.now()

	allEntries, err := workflow.Do(ctx, run, "fetch_entries", func(ctx context.Context) ([]*models.Entry, error) {
		return r.entries.ListByUser(ctx, userID)
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	bundle, err := workflow.Do(ctx, run, "fetch_context", func(ctx context.Context) (*liveBundle, error) {
		return r.fetchContext(ctx, userID, now)
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	pb, err := workflow.Do(ctx, run, "build_prompt", func(ctx context.Context) (*promptBundle, error) {
		return r.buildPrompt(ctx, userID, allEntries, bundle.Live, now)
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	gen, err := workflow.Do(ctx, run, "call_llm", func(ctx context.Context) (*generationOutcome, error) {
		return r.generate(ctx, pb, bundle, now)
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	if _, err := workflow.Do(ctx, run, "persist_signals", func(ctx context.Context) (int, error) {
		return r.persistSignals(ctx, userID, gen.Signals, now)
	}); err != nil {
		return r.failed(ctx, userID, err)
	}

	ranked, err := workflow.Do(ctx, run, "filter_rank", func(context.Context) ([]models.GeneratedItem, error) {
		return feed.FilterAndRank(gen.Items, bundle.Live, now), nil
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	metrics, err := workflow.Do(ctx, run, "record_metrics", func(context.Context) (models.CacheMetrics, error) {
		return feed.ComputeCacheMetrics(pb.PrefixTokens, pb.SuffixTokens, gen.Usage, r.prices.PriceFor(r.model)), nil
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	snap, err := workflow.Do(ctx, run, "persist_snapshot", func(ctx context.Context) (*models.FeedSnapshot, error) {
		s := &models.FeedSnapshot{
			UserID:               userID,
			Items:                ranked,
			LastProcessedEntryID: pb.Watermark,
			Cache:                metrics,
			CreatedAt:            now,
		}
		if err := r.feeds.Create(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return r.failed(ctx, userID, err)
	}

	if err := r.scheduler.Rearm(ctx, userID); err != nil {
		r.logger.Warn("rearm_after_regeneration_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	r.logger.Info("feed_regenerated",
		zap.String("user_id", userID.String()),
		zap.String("run_id", job.ID.String()),
		zap.Int64("feed_version", snap.FeedVersion),
		zap.Int("item_count", len(ranked)),
		zap.Bool("fallback", gen.Fallback),
		zap.Float64("cache_hit_rate", metrics.CacheHitRate))
	return nil
}

// failed marks the user as still needing regeneration and re-arms the
// alarm so the next interval retries.
func (r *FeedRegenerator) failed(ctx context.Context, userID uuid.UUID, err error) error {
	if serr := r.schedule.SetNeedsRegeneration(ctx, userID, true); serr != nil {
		r.logger.Error("restore_regeneration_flag_failed",
			zap.String("user_id", userID.String()),
			zap.Error(serr))
	}
	if rerr := r.scheduler.Rearm(ctx, userID); rerr != nil {
		r.logger.Error("rearm_after_failure_failed",
			zap.String("user_id", userID.String()),
			zap.Error(rerr))
	}
	return err
}

func (r *FeedRegenerator) fetchContext(ctx context.Context, userID uuid.UUID, now time.Time) (*liveBundle, error) {
	active, err := r.tasks.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active tasks: %w", err)
	}

	commitments, err := r.commitments.GetCurrentByUser(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}
	open := commitments[:0]
	for _, c := range commitments {
		if c.IsOpen() {
			open = append(open, c)
		}
	}

	completed, err := r.tasks.GetCompletedSince(ctx, userID, now.Add(-completionLookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent completions: %w", err)
	}

	signals, err := r.signals.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}

	energy := defaultEnergyLevel
	latest, err := r.signals.GetLatestByKey(ctx, userID, models.SignalEnergy)
	switch {
	case err == nil:
		energy = latest.Value
	case errors.Is(err, database.ErrNotFound):
		// no energy signal yet, assume a middling level
	default:
		return nil, fmt.Errorf("failed to load energy signal: %w", err)
	}

	return &liveBundle{
		Live: &models.LiveContext{
			ActiveTasks:       active,
			ActiveCommitments: open,
			RecentCompletions: completed,
			EnergyLevel:       energy,
		},
		Signals: signals,
	}, nil
}

func (r *FeedRegenerator) buildPrompt(ctx context.Context, userID uuid.UUID, entries []*models.Entry, live *models.LiveContext, now time.Time) (*promptBundle, error) {
	var watermark int64
	latest, err := r.feeds.GetLatest(ctx, userID)
	switch {
	case err == nil:
		watermark = latest.LastProcessedEntryID
	case errors.Is(err, database.ErrNotFound):
		// first feed: everything is new
	default:
		return nil, fmt.Errorf("failed to load latest feed: %w", err)
	}

	p := prompt.Build(entries, watermark, now, live)

	newWatermark := watermark
	for _, e := range entries {
		if e.ID > newWatermark {
			newWatermark = e.ID
		}
	}

	return &promptBundle{
		Prefix:       p.Prefix,
		Suffix:       p.Suffix,
		PrefixTokens: p.PrefixTokens,
		SuffixTokens: p.SuffixTokens,
		Watermark:    newWatermark,
	}, nil
}

// generate calls the provider free-form first. If the output violates
// the schema or fails validation it retries once in rephrase mode,
// pinning the model to the deterministic candidate ids so the returned
// id set is checkable against the input. When that also fails the
// candidates ship as-is, so generation never surfaces a model content
// error to the caller.
func (r *FeedRegenerator) generate(ctx context.Context, pb *promptBundle, bundle *liveBundle, now time.Time) (*generationOutcome, error) {
	candidates := feed.BuildCandidates(bundle.Live, bundle.Signals, now)

	var usage models.Usage

	// attempt runs one provider call. A nil outcome with a nil error
	// means the output was rejected and the caller may try again.
	attempt := func(req *ai.GenerateRequest) (*generationOutcome, error) {
		result, err := r.provider.GenerateFeed(ctx, req)
		if err != nil {
			if ai.IsSchemaViolation(err) {
				r.logger.Warn("generation_schema_violation",
					zap.Bool("rephrase", len(req.ExpectedItemIDs) > 0),
					zap.Error(err))
				return nil, nil
			}
			return nil, err
		}

		usage.InputTokens += result.Usage.InputTokens
		usage.OutputTokens += result.Usage.OutputTokens
		usage.CacheReadTokens += result.Usage.CacheReadTokens
		usage.CacheCreationTokens += result.Usage.CacheCreationTokens

		if err := validation.ValidateItems(result.Items); err != nil {
			r.logger.Warn("generation_validation_failed", zap.Error(err))
			return nil, nil
		}
		if len(req.ExpectedItemIDs) > 0 {
			if err := validation.ValidateIDSet(result.Items, req.ExpectedItemIDs); err != nil {
				r.logger.Warn("generation_id_set_mismatch", zap.Error(err))
				return nil, nil
			}
		}

		return &generationOutcome{Items: result.Items, Signals: result.Signals, Usage: usage}, nil
	}

	out, err := attempt(&ai.GenerateRequest{Prefix: pb.Prefix, Suffix: pb.Suffix})
	if err != nil || out != nil {
		return out, err
	}

	retry := &ai.GenerateRequest{Prefix: pb.Prefix, Suffix: pb.Suffix}
	if len(candidates) > 0 {
		retry.ExpectedItemIDs = itemIDs(candidates)
	}
	out, err = attempt(retry)
	if err != nil || out != nil {
		return out, err
	}

	r.logger.Warn("generation_fallback_to_candidates")
	return &generationOutcome{
		Items:    candidates,
		Usage:    usage,
		Fallback: true,
	}, nil
}

func itemIDs(items []models.GeneratedItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// persistSignals stores the valid per-entry readings from generation in
// the versioned signal store. Out-of-range or unknown readings are
// dropped, not failed: signals steer scheduling and ranking, they are
// not part of the feed contract.
func (r *FeedRegenerator) persistSignals(ctx context.Context, userID uuid.UUID, readings []models.SignalReading, now time.Time) (int, error) {
	stored := 0
	for _, reading := range readings {
		if !reading.Valid() {
			r.logger.Warn("signal_reading_dropped",
				zap.String("user_id", userID.String()),
				zap.Int64("entry_id", reading.EntryID),
				zap.String("key", reading.Key))
			continue
		}
		s := &models.Signal{
			UserID:     userID,
			EntryID:    reading.EntryID,
			Key:        reading.Key,
			Value:      reading.Value,
			Confidence: reading.Confidence,
			CreatedAt:  now,
		}
		if err := r.signals.Create(ctx, s); err != nil {
			return stored, fmt.Errorf("failed to store signal: %w", err)
		}
		stored++
	}
	return stored, nil
}

// ProcessJob processes a job based on its type
func (r *FeedRegenerator) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() {
		r.logger.Debug("job_not_ready",
			zap.String("job_id", job.ID.String()),
			zap.Timep("not_before", job.NotBefore))
		if ackErr := msg.Ack(); ackErr != nil {
			r.logger.Error("job_ack_failed", zap.Error(ackErr))
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeRegenerateFeed:
		if err := r.Regenerate(ctx, job); err != nil {
			return r.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			r.logger.Error("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError applies retry logic: quota and rate-limit errors are
// re-enqueued with a delay, everything else nacks for requeue until the
// retry budget runs out, then dead-letters.
func (r *FeedRegenerator) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if ai.IsQuotaError(err) || ai.IsRateLimitError(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := time.Now().Add(retryDelay)

		r.logger.Warn("job_provider_limited",
			zap.String("job_id", job.ID.String()),
			zap.Bool("quota", ai.IsQuotaError(err)),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err))

		if job.CanRetry() && r.jobQueue != nil {
			// Same ID on purpose: the replayed run reuses memoized steps
			delayedJob := &queue.Job{
				ID:         job.ID,
				Type:       job.Type,
				UserID:     job.UserID,
				Reason:     job.Reason,
				NotBefore:  &notBefore,
				NotAfter:   job.NotAfter,
				Metadata:   job.Metadata,
				CreatedAt:  job.CreatedAt,
				RetryCount: job.RetryCount + 1,
				MaxRetries: job.MaxRetries,
			}

			if ackErr := msg.Ack(); ackErr != nil {
				r.logger.Error("job_ack_failed", zap.Error(ackErr))
			}
			if enqueueErr := r.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				return fmt.Errorf("provider limited, failed to re-enqueue: %w", enqueueErr)
			}
			return nil
		}

		if nackErr := msg.Nack(false); nackErr != nil {
			r.logger.Error("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("provider limited (job %s): %w", job.ID, err)
	}

	if job.CanRetry() {
		job.IncrementRetry()
		r.logger.Warn("job_failed_will_retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err))
		if nackErr := msg.Nack(true); nackErr != nil {
			r.logger.Error("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	r.logger.Error("job_failed_dead_lettering",
		zap.String("job_id", job.ID.String()),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err))
	if nackErr := msg.Nack(false); nackErr != nil {
		r.logger.Error("job_nack_failed", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
