package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulse/internal/models"
)

// EntryRepositoryInterface defines entry repository operations used by the
// regeneration workflow. Interfaces enable mock implementations in tests.
type EntryRepositoryInterface interface {
	Create(ctx context.Context, entry *models.Entry) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Entry, error)
}

// CommitmentRepositoryInterface defines commitment repository operations.
type CommitmentRepositoryInterface interface {
	Create(ctx context.Context, c *models.Commitment) error
	GetCurrent(ctx context.Context, userID uuid.UUID, originEntryID int64) (*models.Commitment, error)
	GetCurrentByUser(ctx context.Context, userID uuid.UUID, status *models.CommitmentStatus) ([]*models.Commitment, error)
	Transition(ctx context.Context, userID uuid.UUID, originEntryID int64, next models.CommitmentStatus) (*models.Commitment, error)
	UpdateMetrics(ctx context.Context, userID uuid.UUID, originEntryID int64, metrics models.CommitmentMetrics) error
}

// TaskRepositoryInterface defines task repository operations.
type TaskRepositoryInterface interface {
	Create(ctx context.Context, t *models.Task) error
	GetCurrent(ctx context.Context, userID uuid.UUID, contentKey string) (*models.Task, error)
	GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	GetCompletedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*models.Task, error)
	Transition(ctx context.Context, userID uuid.UUID, contentKey string, next models.TaskStatus) (*models.Task, error)
}

// SignalRepositoryInterface defines signal repository operations.
type SignalRepositoryInterface interface {
	Create(ctx context.Context, s *models.Signal) error
	GetCurrentByUser(ctx context.Context, userID uuid.UUID) ([]*models.Signal, error)
	GetLatestByKey(ctx context.Context, userID uuid.UUID, key string) (*models.Signal, error)
}

// FeedRepositoryInterface defines feed snapshot repository operations.
type FeedRepositoryInterface interface {
	Create(ctx context.Context, snap *models.FeedSnapshot) error
	GetLatest(ctx context.Context, userID uuid.UUID) (*models.FeedSnapshot, error)
	GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FeedSnapshot, error)
}

// ActivityRepositoryInterface defines activity record operations.
type ActivityRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ActivityRecord, error)
	Upsert(ctx context.Context, rec *models.ActivityRecord) error
}

// ScheduleRepositoryInterface defines schedule-state operations.
type ScheduleRepositoryInterface interface {
	NeedsRegeneration(ctx context.Context, userID uuid.UUID) (bool, error)
	SetNeedsRegeneration(ctx context.Context, userID uuid.UUID, needs bool) error
}

// StepRepositoryInterface defines workflow step memoization operations.
type StepRepositoryInterface interface {
	Get(ctx context.Context, runID uuid.UUID, name string) (json.RawMessage, bool, error)
	Put(ctx context.Context, runID uuid.UUID, name string, result json.RawMessage) error
}

// Ensure concrete types implement the interfaces
var (
	_ EntryRepositoryInterface      = (*EntryRepository)(nil)
	_ CommitmentRepositoryInterface = (*CommitmentRepository)(nil)
	_ TaskRepositoryInterface       = (*TaskRepository)(nil)
	_ SignalRepositoryInterface     = (*SignalRepository)(nil)
	_ FeedRepositoryInterface       = (*FeedRepository)(nil)
	_ ActivityRepositoryInterface   = (*ActivityRepository)(nil)
	_ ScheduleRepositoryInterface   = (*ScheduleRepository)(nil)
	_ StepRepositoryInterface       = (*StepRepository)(nil)
)
