package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/models"
	"github.com/pulsefeed/pulse/internal/validation"
)

// renegotiateTrigger is the literal substring that marks a capture as a
// renegotiation of its linked commitment. Crude on purpose; an explicit
// user action may replace it.
// TODO: replace text sniffing with an explicit renegotiate action once the
// capture API grows action verbs.
const renegotiateTrigger = "renegotiate"

var (
	// ErrMissingTaskKey is returned for a task event without a task key.
	ErrMissingTaskKey = errors.New("task event requires task_key")
	// ErrMissingCommitment is returned for a commitment event without a
	// linked commitment.
	ErrMissingCommitment = errors.New("commitment event requires commitment_id")
	// ErrEmptyText is returned when the capture has no content.
	ErrEmptyText = errors.New("capture text must not be empty")
)

var taskEventTransitions = map[models.EventType]models.TaskStatus{
	models.EventTaskStart:   models.TaskStarted,
	models.EventTaskPause:   models.TaskPaused,
	models.EventTaskFinish:  models.TaskCompleted,
	models.EventTaskAbandon: models.TaskAbandoned,
}

var commitmentEventTransitions = map[models.EventType]models.CommitmentStatus{
	models.EventCommitmentComplete: models.CommitmentCompleted,
	models.EventCommitmentRetire:   models.CommitmentRetired,
}

// Scheduler is the part of the adaptive scheduler the ingest path needs.
type Scheduler interface {
	OnCapture(ctx context.Context, userID uuid.UUID) error
}

// Input is one incoming capture.
type Input struct {
	Text          string                `json:"text" validate:"required,max=4000"`
	TaskKey       *string               `json:"task_key,omitempty"`
	CommitmentID  *int64                `json:"commitment_id,omitempty"`
	EventType     *models.EventType     `json:"event_type,omitempty"`
	ActionContext *models.ActionContext `json:"action_context,omitempty"`
}

// Service is the capture ingest path: it appends the entry, applies any
// carried state transition, refreshes commitment metrics and pokes the
// scheduler. Transition failures surface to the caller; scheduling
// failures are logged but never fail the capture.
type Service struct {
	entries     database.EntryRepositoryInterface
	tasks       database.TaskRepositoryInterface
	commitments database.CommitmentRepositoryInterface
	scheduler   Scheduler
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(
	entries database.EntryRepositoryInterface,
	tasks database.TaskRepositoryInterface,
	commitments database.CommitmentRepositoryInterface,
	sched Scheduler,
	logger *zap.Logger,
) *Service {
	return &Service{
		entries:     entries,
		tasks:       tasks,
		commitments: commitments,
		scheduler:   sched,
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest records a capture for the user and applies its side effects.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, in *Input) (*models.Entry, error) {
	text := validation.SanitizeText(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	entry := &models.Entry{
		UserID:        userID,
		Text:          text,
		TaskKey:       in.TaskKey,
		CommitmentID:  in.CommitmentID,
		EventType:     in.EventType,
		ActionContext: in.ActionContext,
		CreatedAt:     s.now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store entry: %w", err)
	}

	if in.EventType != nil {
		if err := s.applyEvent(ctx, userID, entry, *in.EventType); err != nil {
			return nil, err
		}
	}

	if in.CommitmentID != nil && strings.Contains(strings.ToLower(text), renegotiateTrigger) {
		s.renegotiate(ctx, userID, *in.CommitmentID)
	}

	if in.CommitmentID != nil {
		s.refreshMetrics(ctx, userID, *in.CommitmentID)
	}

	if err := s.scheduler.OnCapture(ctx, userID); err != nil {
		s.logger.Warn("capture_scheduling_failed",
			zap.String("user_id", userID.String()),
			zap.Int64("entry_id", entry.ID),
			zap.Error(err))
	}

	return entry, nil
}

func (s *Service) applyEvent(ctx context.Context, userID uuid.UUID, entry *models.Entry, event models.EventType) error {
	if next, ok := taskEventTransitions[event]; ok {
		if entry.TaskKey == nil {
			return ErrMissingTaskKey
		}
		return s.applyTaskEvent(ctx, userID, entry, *entry.TaskKey, next)
	}

	if next, ok := commitmentEventTransitions[event]; ok {
		if entry.CommitmentID == nil {
			return ErrMissingCommitment
		}
		if _, err := s.commitments.Transition(ctx, userID, *entry.CommitmentID, next); err != nil {
			return fmt.Errorf("failed to transition commitment %d: %w", *entry.CommitmentID, err)
		}
		return nil
	}

	return fmt.Errorf("unknown event type %q", event)
}

// applyTaskEvent transitions the named task; starting a task nobody has
// mentioned before creates it on the fly.
func (s *Service) applyTaskEvent(ctx context.Context, userID uuid.UUID, entry *models.Entry, taskKey string, next models.TaskStatus) error {
	key := models.NormalizeContent(taskKey)
	_, err := s.tasks.Transition(ctx, userID, key, next)
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrNotFound) && next == models.TaskStarted {
		task := &models.Task{
			UserID:            userID,
			ContentKey:        key,
			Content:           taskKey,
			Status:            models.TaskStarted,
			CommitmentEntryID: entry.CommitmentID,
			CreatedAt:         s.now(),
		}
		if cerr := s.tasks.Create(ctx, task); cerr != nil {
			return fmt.Errorf("failed to create task %q: %w", taskKey, cerr)
		}
		return nil
	}
	return fmt.Errorf("failed to transition task %q: %w", taskKey, err)
}

// renegotiate moves the linked commitment to renegotiated if its current
// state allows it. An impossible transition is logged, not surfaced; the
// trigger is a heuristic, not a user command.
func (s *Service) renegotiate(ctx context.Context, userID uuid.UUID, commitmentID int64) {
	if _, err := s.commitments.Transition(ctx, userID, commitmentID, models.CommitmentRenegotiated); err != nil {
		s.logger.Debug("renegotiate_trigger_ignored",
			zap.String("user_id", userID.String()),
			zap.Int64("commitment_id", commitmentID),
			zap.Error(err))
	}
}

// refreshMetrics recomputes derivative commitment metrics from the entry
// history. Best-effort: metrics are observational and recomputable.
func (s *Service) refreshMetrics(ctx context.Context, userID uuid.UUID, commitmentID int64) {
	c, err := s.commitments.GetCurrent(ctx, userID, commitmentID)
	if err != nil {
		s.logger.Debug("metrics_refresh_skipped",
			zap.String("user_id", userID.String()),
			zap.Int64("commitment_id", commitmentID),
			zap.Error(err))
		return
	}

	all, err := s.entries.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("metrics_refresh_failed",
			zap.String("user_id", userID.String()),
			zap.Int64("commitment_id", commitmentID),
			zap.Error(err))
		return
	}

	metrics := ComputeMetrics(c, all, s.now())
	if err := s.commitments.UpdateMetrics(ctx, userID, commitmentID, metrics); err != nil {
		s.logger.Warn("metrics_update_failed",
			zap.String("user_id", userID.String()),
			zap.Int64("commitment_id", commitmentID),
			zap.Error(err))
	}
}
