package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memStepStore struct {
	steps map[string]json.RawMessage
}

func newMemStepStore() *memStepStore {
	return &memStepStore{steps: make(map[string]json.RawMessage)}
}

func (m *memStepStore) key(runID uuid.UUID, name string) string {
	return runID.String() + "/" + name
}

func (m *memStepStore) Get(_ context.Context, runID uuid.UUID, name string) (json.RawMessage, bool, error) {
	raw, ok := m.steps[m.key(runID, name)]
	return raw, ok, nil
}

func (m *memStepStore) Put(_ context.Context, runID uuid.UUID, name string, result json.RawMessage) error {
	k := m.key(runID, name)
	if _, exists := m.steps[k]; exists {
		return nil
	}
	m.steps[k] = result
	return nil
}

func TestDoMemoizesResult(t *testing.T) {
	t.Parallel()

	store := newMemStepStore()
	run := NewRun(uuid.New(), store, zap.NewNop())
	calls := 0

	fn := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	first, err := Do(context.Background(), run, "compute", fn)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := Do(context.Background(), run, "compute", fn)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if first != 42 || second != 42 {
		t.Errorf("results = %d, %d, want 42", first, second)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDoReplayResumesAfterFailure(t *testing.T) {
	t.Parallel()

	store := newMemStepStore()
	runID := uuid.New()
	fetchCalls := 0
	boom := errors.New("provider unavailable")

	attempt := func(failSecond bool) (string, error) {
		run := NewRun(runID, store, zap.NewNop())
		ctx := context.Background()

		entries, err := Do(ctx, run, "fetch", func(context.Context) ([]string, error) {
			fetchCalls++
			return []string{"a", "b"}, nil
		})
		if err != nil {
			return "", err
		}

		return Do(ctx, run, "generate", func(context.Context) (string, error) {
			if failSecond {
				return "", boom
			}
			return entries[0] + entries[1], nil
		})
	}

	if _, err := attempt(true); !errors.Is(err, boom) {
		t.Fatalf("expected first attempt to fail with provider error, got %v", err)
	}

	out, err := attempt(false)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if out != "ab" {
		t.Errorf("replay result = %q, want %q", out, "ab")
	}
	if fetchCalls != 1 {
		t.Errorf("fetch executed %d times across attempts, want 1 (memoized)", fetchCalls)
	}
}

func TestDoDistinctRunsDoNotShareResults(t *testing.T) {
	t.Parallel()

	store := newMemStepStore()
	calls := 0
	fn := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	a, _ := Do(context.Background(), NewRun(uuid.New(), store, zap.NewNop()), "step", fn)
	b, _ := Do(context.Background(), NewRun(uuid.New(), store, zap.NewNop()), "step", fn)

	if a == b {
		t.Errorf("distinct runs shared a memoized result: %d", a)
	}
}

func TestDoFailedStepIsNotMemoized(t *testing.T) {
	t.Parallel()

	store := newMemStepStore()
	run := NewRun(uuid.New(), store, zap.NewNop())
	calls := 0

	_, err := Do(context.Background(), run, "flaky", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	out, err := Do(context.Background(), run, "flaky", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if out != 7 {
		t.Errorf("retry result = %d, want 7", out)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}
