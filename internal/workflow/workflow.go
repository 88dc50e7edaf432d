package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StepStore persists step results keyed by (run ID, step name). Put must
// be idempotent: writing a result that already exists is a no-op and the
// first write wins.
type StepStore interface {
	Get(ctx context.Context, runID uuid.UUID, name string) (json.RawMessage, bool, error)
	Put(ctx context.Context, runID uuid.UUID, name string, result json.RawMessage) error
}

// Run is one durable workflow execution. Steps executed through Do are
// memoized in the store, so re-running the same run ID after a crash or a
// queue redelivery skips completed steps and resumes at the first
// unfinished one.
type Run struct {
	ID     uuid.UUID
	store  StepStore
	logger *zap.Logger
}

func NewRun(id uuid.UUID, store StepStore, logger *zap.Logger) *Run {
	return &Run{ID: id, store: store, logger: logger}
}

// Do executes fn under name, memoizing its JSON-encoded result. If the
// step already ran in this run the stored result is returned and fn is
// not invoked. Results must be JSON-serializable.
func Do[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, span := otel.Tracer("workflow").Start(ctx, "step."+name)
	defer span.End()
	span.SetAttributes(attribute.String("run_id", run.ID.String()))

	if raw, ok, err := run.store.Get(ctx, run.ID, name); err != nil {
		return zero, fmt.Errorf("failed to read step %q: %w", name, err)
	} else if ok {
		var result T
		if err := json.Unmarshal(raw, &result); err != nil {
			return zero, fmt.Errorf("failed to decode memoized step %q: %w", name, err)
		}
		span.SetAttributes(attribute.Bool("memoized", true))
		run.logger.Debug("workflow_step_replayed",
			zap.String("run_id", run.ID.String()),
			zap.String("step", name))
		return result, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, fmt.Errorf("step %q failed: %w", name, err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("failed to encode step %q result: %w", name, err)
	}
	if err := run.store.Put(ctx, run.ID, name, raw); err != nil {
		return zero, fmt.Errorf("failed to store step %q result: %w", name, err)
	}

	run.logger.Debug("workflow_step_completed",
		zap.String("run_id", run.ID.String()),
		zap.String("step", name))
	return result, nil
}
