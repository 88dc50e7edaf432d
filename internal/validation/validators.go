package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/pulsefeed/pulse/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("commitment_status", validateCommitmentStatus); err != nil {
		panic(fmt.Sprintf("failed to register commitment_status validator: %v", err))
	}
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value
func validateTaskStatus(fl validator.FieldLevel) bool {
	switch models.TaskStatus(fl.Field().String()) {
	case models.TaskPlanned, models.TaskStarted, models.TaskPaused, models.TaskCompleted, models.TaskAbandoned:
		return true
	default:
		return false
	}
}

// validateCommitmentStatus validates that a string is a valid CommitmentStatus enum value
func validateCommitmentStatus(fl validator.FieldLevel) bool {
	switch models.CommitmentStatus(fl.Field().String()) {
	case models.CommitmentConfirmed, models.CommitmentActive, models.CommitmentCompleted,
		models.CommitmentRetired, models.CommitmentRenegotiated:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateItems checks every generated item against the struct tags. This
// is the trust boundary for model output: items that fail here never reach
// the filter pipeline or storage.
func ValidateItems(items []models.GeneratedItem) error {
	seen := make(map[string]bool, len(items))
	for i := range items {
		if err := Validate.Struct(&items[i]); err != nil {
			return fmt.Errorf("item %d (%s): %w", i, items[i].ID, err)
		}
		if seen[items[i].ID] {
			return fmt.Errorf("item %d: duplicate id %q", i, items[i].ID)
		}
		seen[items[i].ID] = true
	}
	return nil
}

// ValidateIDSet checks that every item id is one the caller expected.
// Used for phrasing flows where the model must rephrase known candidates,
// not invent new ones.
func ValidateIDSet(items []models.GeneratedItem, expected []string) error {
	allowed := make(map[string]bool, len(expected))
	for _, id := range expected {
		allowed[id] = true
	}
	for i := range items {
		if !allowed[items[i].ID] {
			return fmt.Errorf("item %d: unexpected id %q", i, items[i].ID)
		}
	}
	return nil
}
