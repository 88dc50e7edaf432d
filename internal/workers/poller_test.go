package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rearmedAlarm struct {
	userID uuid.UUID
	at     time.Time
}

type fakeAlarmSource struct {
	mu      sync.Mutex
	due     [][]uuid.UUID
	err     error
	rearmed []rearmedAlarm
}

func (f *fakeAlarmSource) Due(context.Context, time.Time, int64) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.due) == 0 {
		return nil, nil
	}
	batch := f.due[0]
	f.due = f.due[1:]
	return batch, nil
}

func (f *fakeAlarmSource) Arm(_ context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rearmed = append(f.rearmed, rearmedAlarm{userID: userID, at: at})
	return nil
}

type fakeAlarmHandler struct {
	mu    sync.Mutex
	fired []uuid.UUID
	errs  map[uuid.UUID]error
}

func (f *fakeAlarmHandler) OnAlarmFire(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, userID)
	return f.errs[userID]
}

func TestPollerFiresDueAlarms(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	source := &fakeAlarmSource{due: [][]uuid.UUID{{a, b}}}
	handler := &fakeAlarmHandler{}

	p := NewAlarmPoller(source, handler, time.Millisecond, zap.NewNop())
	p.poll(context.Background())
	p.poll(context.Background())

	if len(handler.fired) != 2 {
		t.Fatalf("fired = %d, want 2", len(handler.fired))
	}
	if handler.fired[0] != a || handler.fired[1] != b {
		t.Error("expected alarms fired in claimed order")
	}
}

func TestPollerContinuesPastHandlerError(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	source := &fakeAlarmSource{due: [][]uuid.UUID{{a, b}}}
	handler := &fakeAlarmHandler{errs: map[uuid.UUID]error{a: errors.New("gate failed")}}

	p := NewAlarmPoller(source, handler, time.Millisecond, zap.NewNop())
	p.poll(context.Background())

	if len(handler.fired) != 2 {
		t.Errorf("fired = %d, want 2 (error on one user must not stop the batch)", len(handler.fired))
	}
}

func TestPollerRearmsAlarmOnHandlerError(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	source := &fakeAlarmSource{due: [][]uuid.UUID{{a, b}}}
	handler := &fakeAlarmHandler{errs: map[uuid.UUID]error{a: errors.New("db down")}}

	p := NewAlarmPoller(source, handler, time.Millisecond, zap.NewNop())
	before := time.Now()
	p.poll(context.Background())

	// Claiming removed a's only alarm; the failed fire must put one back
	// or a stays stale until their next capture.
	if len(source.rearmed) != 1 {
		t.Fatalf("rearmed = %d, want 1", len(source.rearmed))
	}
	if source.rearmed[0].userID != a {
		t.Errorf("rearmed user = %s, want the failed one", source.rearmed[0].userID)
	}
	if got := source.rearmed[0].at; got.Before(before) || got.After(before.Add(alarmRetryDelay+time.Minute)) {
		t.Errorf("rearm time = %v, want about %v out", got, alarmRetryDelay)
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	t.Parallel()

	source := &fakeAlarmSource{}
	handler := &fakeAlarmHandler{}
	p := NewAlarmPoller(source, handler, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
