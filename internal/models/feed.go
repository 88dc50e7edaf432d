package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemType classifies a generated feed item.
type ItemType string

const (
	ItemTask                ItemType = "task"
	ItemReminder            ItemType = "reminder"
	ItemNudge               ItemType = "nudge"
	ItemPotentialCommitment ItemType = "potential_commitment"
)

// GeneratedItem is one item of raw LLM output (or of the deterministic
// candidate pipeline). It is only trusted after passing validation.
type GeneratedItem struct {
	ID                  string   `json:"id" validate:"required"`
	Type                ItemType `json:"type" validate:"required,oneof=task reminder nudge potential_commitment"`
	Content             string   `json:"content" validate:"required"`
	Urgency             float64  `json:"urgency" validate:"min=0,max=1"`
	Importance          float64  `json:"importance" validate:"min=0,max=1"`
	PriorityScore       *float64 `json:"priority_score,omitempty" validate:"omitempty,min=0,max=1"`
	RelatedCommitmentID *int64   `json:"related_commitment_id,omitempty"`
	RelatedTaskKey      *string  `json:"related_task_key,omitempty"`
	DedupKey            string   `json:"dedup_key,omitempty"`
	TimeOfDay           string   `json:"time_of_day,omitempty"`
}

// Priority is the composite priority score: priority_score when the
// generator supplied one, urgency x importance otherwise.
func (i *GeneratedItem) Priority() float64 {
	if i.PriorityScore != nil {
		return *i.PriorityScore
	}
	return i.Urgency * i.Importance
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
}

// CacheMetrics is the derived cost/cache accounting persisted with a
// snapshot. Purely observational; never gates correctness.
type CacheMetrics struct {
	PrefixTokens        int     `json:"prefix_tokens"`
	SuffixTokens        int     `json:"suffix_tokens"`
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`
}

// FeedSnapshot is one immutable, versioned generation of the ranked feed.
// FeedVersion is strictly increasing per user; LastProcessedEntryID is the
// watermark up to which entries were frozen into the prompt prefix.
type FeedSnapshot struct {
	UserID               uuid.UUID       `json:"user_id"`
	FeedVersion          int64           `json:"feed_version"`
	Items                []GeneratedItem `json:"items"`
	LastProcessedEntryID int64           `json:"last_processed_entry_id"`
	Cache                CacheMetrics    `json:"cache"`
	CreatedAt            time.Time       `json:"created_at"`
}

// LiveContext is the mutable per-user context that accompanies a
// regeneration: it always goes to the prompt suffix, never the prefix.
type LiveContext struct {
	ActiveTasks       []*Task       `json:"active_tasks"`
	ActiveCommitments []*Commitment `json:"active_commitments"`
	RecentCompletions []*Task       `json:"recent_completions"`
	EnergyLevel       float64       `json:"energy_level"`
	Location          string        `json:"location,omitempty"`
}
