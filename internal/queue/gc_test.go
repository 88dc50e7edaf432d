package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStepPurger struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	purged  int64
}

func (f *fakeStepPurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.purged, nil
}

func TestGarbageCollectorPurgesOnTick(t *testing.T) {
	t.Parallel()

	purger := &fakeStepPurger{purged: 3}
	gc := NewGarbageCollector(purger, 10*time.Millisecond, 72*time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := gc.Start(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	purger.mu.Lock()
	defer purger.mu.Unlock()
	if purger.calls == 0 {
		t.Fatal("expected at least one purge call")
	}
	wantBefore := time.Now().Add(-71 * time.Hour)
	for _, cutoff := range purger.cutoffs {
		if cutoff.After(wantBefore) {
			t.Errorf("cutoff %v too recent for a 72h retention", cutoff)
		}
	}
}

func TestGarbageCollectorNilPurger(t *testing.T) {
	t.Parallel()

	gc := NewGarbageCollector(nil, 5*time.Millisecond, time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := gc.Start(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
