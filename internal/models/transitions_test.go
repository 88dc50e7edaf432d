package models

import (
	"errors"
	"testing"
	"time"
)

func TestCommitmentTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    CommitmentStatus
		to      CommitmentStatus
		allowed bool
	}{
		{"confirmed to active", CommitmentConfirmed, CommitmentActive, true},
		{"active to completed", CommitmentActive, CommitmentCompleted, true},
		{"active to retired", CommitmentActive, CommitmentRetired, true},
		{"active to renegotiated", CommitmentActive, CommitmentRenegotiated, true},
		{"renegotiated back to active", CommitmentRenegotiated, CommitmentActive, true},
		{"confirmed straight to completed", CommitmentConfirmed, CommitmentCompleted, false},
		{"completed is terminal", CommitmentCompleted, CommitmentActive, false},
		{"retired is terminal", CommitmentRetired, CommitmentActive, false},
		{"renegotiated cannot complete directly", CommitmentRenegotiated, CommitmentCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCommitmentTransition(tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("expected %s -> %s to be allowed, got %v", tt.from, tt.to, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatalf("expected %s -> %s to be rejected", tt.from, tt.to)
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			}
		})
	}
}

func TestTaskTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{"planned to started", TaskPlanned, TaskStarted, true},
		{"planned to completed", TaskPlanned, TaskCompleted, true},
		{"started to paused", TaskStarted, TaskPaused, true},
		{"paused to started", TaskPaused, TaskStarted, true},
		{"paused to completed", TaskPaused, TaskCompleted, true},
		{"planned to paused", TaskPlanned, TaskPaused, false},
		{"completed is terminal", TaskCompleted, TaskStarted, false},
		{"abandoned is terminal", TaskAbandoned, TaskPlanned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTaskTransition(tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("expected %s -> %s to be allowed, got %v", tt.from, tt.to, err)
			}
			if !tt.allowed && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Buy milk", "buy milk"},
		{"  buy   MILK \t", "buy milk"},
		{"buy\nmilk", "buy milk"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeContent(tt.in); got != tt.want {
			t.Errorf("NormalizeContent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestActivityRecordPrune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := &ActivityRecord{
		CaptureTimes: []time.Time{
			now.Add(-31 * 24 * time.Hour), // outside the window, dropped
			now.Add(-20 * 24 * time.Hour),
			now.Add(-3 * 24 * time.Hour),
			now.Add(-2 * time.Hour),
		},
	}

	rec.Prune(now)

	if len(rec.CaptureTimes) != 3 {
		t.Fatalf("expected 3 retained timestamps, got %d", len(rec.CaptureTimes))
	}
	if rec.Count24h != 1 {
		t.Errorf("Count24h = %d, want 1", rec.Count24h)
	}
	if rec.Count7d != 2 {
		t.Errorf("Count7d = %d, want 2", rec.Count7d)
	}
	if rec.Count30d != 3 {
		t.Errorf("Count30d = %d, want 3", rec.Count30d)
	}
}

func TestGeneratedItemPriority(t *testing.T) {
	t.Parallel()

	score := 0.9
	withScore := &GeneratedItem{Urgency: 0.5, Importance: 0.5, PriorityScore: &score}
	if got := withScore.Priority(); got != 0.9 {
		t.Errorf("Priority with explicit score = %v, want 0.9", got)
	}

	without := &GeneratedItem{Urgency: 0.5, Importance: 0.4}
	if got := without.Priority(); got != 0.2 {
		t.Errorf("Priority fallback = %v, want 0.2", got)
	}
}
