package feed

import (
	"testing"
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
}

func item(id string, urgency, importance float64) models.GeneratedItem {
	return models.GeneratedItem{
		ID:         id,
		Type:       models.ItemTask,
		Content:    "item " + id,
		Urgency:    urgency,
		Importance: importance,
	}
}

func emptyLive() *models.LiveContext {
	return &models.LiveContext{EnergyLevel: 0.5}
}

func TestPotentialCommitmentDedup(t *testing.T) {
	t.Parallel()

	low := 0.4
	high := 0.8
	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemPotentialCommitment, Content: "run more", DedupKey: "running", PriorityScore: &low, Urgency: 1, Importance: 1},
		{ID: "b", Type: models.ItemPotentialCommitment, Content: "start running weekly", DedupKey: "running", PriorityScore: &high, Urgency: 0.1, Importance: 0.1},
		{ID: "c", Type: models.ItemPotentialCommitment, Content: "read daily", DedupKey: "reading", Urgency: 0.5, Importance: 0.5},
	}

	out := FilterAndRank(items, emptyLive(), at(14))

	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
	for _, it := range out {
		if it.DedupKey == "running" && it.ID != "b" {
			t.Errorf("expected higher-priority item b to survive the running group, got %s", it.ID)
		}
	}
}

func TestCommitmentReferenceDedup(t *testing.T) {
	t.Parallel()

	commitmentID := int64(42)
	otherID := int64(43)
	live := &models.LiveContext{
		EnergyLevel: 0.5,
		ActiveTasks: []*models.Task{{
			Content:           "draft the essay",
			ContentKey:        "draft the essay",
			Status:            models.TaskStarted,
			CommitmentEntryID: &commitmentID,
		}},
	}

	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemTask, Content: "work on the essay", Urgency: 0.9, Importance: 0.9, RelatedCommitmentID: &commitmentID},
		{ID: "b", Type: models.ItemTask, Content: "plan the trip", Urgency: 0.6, Importance: 0.6, RelatedCommitmentID: &otherID},
		{ID: "c", Type: models.ItemTask, Content: "book the flights", Urgency: 0.5, Importance: 0.5, RelatedCommitmentID: &otherID},
	}

	out := FilterAndRank(items, live, at(14))

	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if out[0].ID != "b" {
		t.Errorf("expected b to survive (first claim on commitment 43), got %s", out[0].ID)
	}
}

func TestContentDedupAgainstActiveTasks(t *testing.T) {
	t.Parallel()

	live := &models.LiveContext{
		EnergyLevel: 0.5,
		ActiveTasks: []*models.Task{{Content: "Buy milk", ContentKey: "buy milk", Status: models.TaskPlanned}},
	}

	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemTask, Content: "buy   milk", Urgency: 0.5, Importance: 0.5},
		{ID: "b", Type: models.ItemTask, Content: "call the dentist", Urgency: 0.5, Importance: 0.5},
	}

	out := FilterAndRank(items, live, at(14))

	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected whitespace/case variant of active task to be dropped, got %+v", out)
	}
}

func TestContentDedupContainment(t *testing.T) {
	t.Parallel()

	live := &models.LiveContext{
		EnergyLevel: 0.5,
		ActiveTasks: []*models.Task{{Content: "write the quarterly report", ContentKey: "write the quarterly report", Status: models.TaskStarted}},
	}

	items := []models.GeneratedItem{
		// contained and >= 70% of the longer string's length
		{ID: "a", Type: models.ItemTask, Content: "the quarterly report", Urgency: 0.5, Importance: 0.5},
		// contained but far below 70%
		{ID: "b", Type: models.ItemTask, Content: "report", Urgency: 0.5, Importance: 0.5},
	}

	out := FilterAndRank(items, live, at(14))

	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected only the short non-similar item to survive, got %+v", out)
	}
}

func TestTimeOfDaySuppression(t *testing.T) {
	t.Parallel()

	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemReminder, Content: "wind down", Urgency: 0.5, Importance: 0.5, TimeOfDay: "evening"},
		{ID: "b", Type: models.ItemReminder, Content: "night routine", Urgency: 0.5, Importance: 0.5, TimeOfDay: "night"},
		{ID: "c", Type: models.ItemReminder, Content: "stretch", Urgency: 0.5, Importance: 0.5},
	}

	out := FilterAndRank(items, emptyLive(), at(8))
	if len(out) != 1 || out[0].ID != "c" {
		t.Fatalf("expected evening/night items dropped at 08:30, got %+v", out)
	}

	morning := []models.GeneratedItem{
		{ID: "d", Type: models.ItemReminder, Content: "morning pages", Urgency: 0.5, Importance: 0.5, TimeOfDay: "morning"},
		{ID: "e", Type: models.ItemReminder, Content: "early run", Urgency: 0.5, Importance: 0.5, TimeOfDay: "early"},
	}
	out = FilterAndRank(morning, emptyLive(), at(18))
	if len(out) != 0 {
		t.Fatalf("expected morning/early items dropped at 18:30, got %+v", out)
	}
}

func TestEnergySuppression(t *testing.T) {
	t.Parallel()

	live := &models.LiveContext{EnergyLevel: 0.2}
	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemTask, Content: "file taxes now", Urgency: 0.9, Importance: 0.9},
		{ID: "b", Type: models.ItemTask, Content: "sort photos", Urgency: 0.3, Importance: 0.5},
	}

	out := FilterAndRank(items, live, at(14))

	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected high-urgency item dropped at low energy, got %+v", out)
	}
}

func TestRecentCompletionSuppression(t *testing.T) {
	t.Parallel()

	now := at(14)
	justDone := now.Add(-30 * time.Minute)
	longAgo := now.Add(-3 * time.Hour)
	live := &models.LiveContext{
		EnergyLevel: 0.5,
		RecentCompletions: []*models.Task{
			{Content: "water the plants", Status: models.TaskCompleted, CompletedAt: &justDone},
			{Content: "pay the rent", Status: models.TaskCompleted, CompletedAt: &longAgo},
		},
	}

	items := []models.GeneratedItem{
		{ID: "a", Type: models.ItemTask, Content: "Water the plants", Urgency: 0.5, Importance: 0.5},
		{ID: "b", Type: models.ItemTask, Content: "pay the rent", Urgency: 0.5, Importance: 0.5},
	}

	out := FilterAndRank(items, live, now)

	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected only the >2h-old completion echo to survive, got %+v", out)
	}
}

func TestOverwhelmCap(t *testing.T) {
	t.Parallel()

	scores := []float64{0.9, 0.8, 0.7, 0.6, 0.55, 0.4, 0.3, 0.2}
	items := make([]models.GeneratedItem, 0, len(scores))
	for i, s := range scores {
		score := s
		items = append(items, models.GeneratedItem{
			ID:            string(rune('a' + i)),
			Type:          models.ItemTask,
			Content:       "unique content " + string(rune('a'+i)),
			Urgency:       0.5,
			Importance:    0.5,
			PriorityScore: &score,
		})
	}

	out := FilterAndRank(items, emptyLive(), at(14))

	if len(out) != 5 {
		t.Fatalf("expected exactly 5 items with priority >= 0.5, got %d", len(out))
	}
	for i, it := range out {
		if it.Priority() < overwhelmMinScore {
			t.Errorf("item %d has priority %v below the cutoff", i, it.Priority())
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i].Priority() > out[i-1].Priority() {
			t.Error("result not sorted by descending priority")
		}
	}
}

func TestOverwhelmHardCap(t *testing.T) {
	t.Parallel()

	items := make([]models.GeneratedItem, 0, 10)
	for i := 0; i < 10; i++ {
		score := 0.9
		items = append(items, models.GeneratedItem{
			ID:            string(rune('a' + i)),
			Type:          models.ItemTask,
			Content:       "strong item " + string(rune('a'+i)),
			Urgency:       0.9,
			Importance:    0.9,
			PriorityScore: &score,
		})
	}

	out := FilterAndRank(items, emptyLive(), at(14))

	if len(out) != overwhelmHardCap {
		t.Fatalf("expected hard cap of %d, got %d", overwhelmHardCap, len(out))
	}
}

func TestFilterIsPure(t *testing.T) {
	t.Parallel()

	items := []models.GeneratedItem{
		item("a", 0.9, 0.9),
		item("b", 0.2, 0.2),
	}
	live := emptyLive()

	first := FilterAndRank(append([]models.GeneratedItem(nil), items...), live, at(14))
	second := FilterAndRank(append([]models.GeneratedItem(nil), items...), live, at(14))

	if len(first) != len(second) {
		t.Fatalf("same input produced different lengths: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("same input produced different order at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}
