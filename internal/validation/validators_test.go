package validation

import (
	"testing"

	"github.com/pulsefeed/pulse/internal/models"
)

func validItem(id string) models.GeneratedItem {
	return models.GeneratedItem{
		ID:         id,
		Type:       models.ItemTask,
		Content:    "do something",
		Urgency:    0.5,
		Importance: 0.5,
	}
}

func TestValidateItems(t *testing.T) {
	t.Parallel()

	if err := ValidateItems([]models.GeneratedItem{validItem("a"), validItem("b")}); err != nil {
		t.Errorf("valid items rejected: %v", err)
	}
}

func TestValidateItemsRejections(t *testing.T) {
	t.Parallel()

	bad := func(mutate func(*models.GeneratedItem)) []models.GeneratedItem {
		item := validItem("a")
		mutate(&item)
		return []models.GeneratedItem{item}
	}

	tests := []struct {
		name  string
		items []models.GeneratedItem
	}{
		{"missing content", bad(func(i *models.GeneratedItem) { i.Content = "" })},
		{"unknown type", bad(func(i *models.GeneratedItem) { i.Type = "suggestion" })},
		{"urgency above one", bad(func(i *models.GeneratedItem) { i.Urgency = 1.5 })},
		{"negative importance", bad(func(i *models.GeneratedItem) { i.Importance = -0.1 })},
		{"priority score out of range", bad(func(i *models.GeneratedItem) {
			score := 2.0
			i.PriorityScore = &score
		})},
		{"duplicate ids", []models.GeneratedItem{validItem("a"), validItem("a")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateItems(tt.items); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateIDSet(t *testing.T) {
	t.Parallel()

	items := []models.GeneratedItem{validItem("task:a"), validItem("commitment:7")}

	if err := ValidateIDSet(items, []string{"task:a", "commitment:7", "task:b"}); err != nil {
		t.Errorf("expected ids accepted, got %v", err)
	}
	if err := ValidateIDSet(items, []string{"task:a"}); err == nil {
		t.Error("expected rejection of unexpected id")
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"  buy milk  ", "buy milk"},
		{"line one\nline two", "line one\nline two"},
		{"tabs\tkept", "tabs\tkept"},
		{"null\x00byte", "nullbyte"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeText(tt.in); got != tt.want {
			t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
