package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

// systemInstructions is the frozen head of every prompt. It must never
// change between two calls for the same watermark: everything in the
// prefix is byte-stable so the provider can serve it from cache.
const systemInstructions = `You are the feed engine of a personal assistant. You turn a user's raw
captures into a short list of actionable feed items: tasks, reminders,
nudges, and potential commitments.

You must output ONLY a JSON object with two fields: "items", an array of
item objects, and "signals", an array of signal readings.

Each item object has these exact fields:
- id: string, a stable identifier you assign to the item
- type: one of "task", "reminder", "nudge", "potential_commitment"
- content: string, the phrased item shown to the user, one sentence
- urgency: number from 0 to 1
- importance: number from 0 to 1
- priority_score: optional number from 0 to 1
- related_commitment_id: optional integer, the origin entry id of an
  existing commitment the item advances
- related_task_key: optional string, the normalized content of an existing
  task the item refers to
- dedup_key: required for type "potential_commitment", a short slug naming
  the underlying commitment so duplicates can be collapsed
- time_of_day: optional, one of "morning", "early", "afternoon",
  "evening", "night" when the item only makes sense at that time

Each signal reading scores one NEW entry (never a processed one) and has
these exact fields:
- entry_id: integer, the id of the new entry being scored
- key: one of "actionability", "habit_likelihood", "energy"
- value: number from 0 to 1
- confidence: number from 0 to 1

Rules:
1. Phrase items as direct, concrete next actions.
2. Never invent commitment ids or task keys; only reference ones provided.
3. Prefer fewer, better items over many weak ones.
4. Use strict JSON numeric literals (e.g. 0.85, never .85).
5. Output ONLY the JSON object, no markdown, no explanation.`

// Prompt is the assembled two-part prompt. Token counts are a chars/4
// approximation used only for cost accounting.
type Prompt struct {
	Prefix       string `json:"prefix"`
	Suffix       string `json:"suffix"`
	PrefixTokens int    `json:"prefix_tokens"`
	SuffixTokens int    `json:"suffix_tokens"`
}

// EstimateTokens approximates token count as len/4, good enough for
// budget accounting; exact tokenization belongs to the provider.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return len(s) / 4
}

// Build splits entries at the watermark: ids at or below
// lastProcessedEntryID are frozen into the prefix together with the system
// instructions; newer entries and all live mutable context go to the
// suffix. Anything that can change between two calls for the same
// watermark must never be placed in the prefix.
func Build(entries []*models.Entry, lastProcessedEntryID int64, now time.Time, live *models.LiveContext) Prompt {
	var history, fresh []*models.Entry
	for _, e := range entries {
		if e.ID <= lastProcessedEntryID {
			history = append(history, e)
		} else {
			fresh = append(fresh, e)
		}
	}

	var prefix strings.Builder
	prefix.WriteString(systemInstructions)
	prefix.WriteString("\n\n# Processed history\n")
	prefix.WriteString(CanonicalizeEntries(history))

	var suffix strings.Builder
	suffix.WriteString("# New entries\n")
	suffix.WriteString(CanonicalizeEntries(fresh))
	suffix.WriteString("\n\n# Active tasks\n")
	suffix.WriteString(CanonicalizeTasks(live.ActiveTasks))
	suffix.WriteString("\n\n# Active commitments\n")
	suffix.WriteString(CanonicalizeCommitments(live.ActiveCommitments))
	suffix.WriteString("\n\n# Recently completed\n")
	suffix.WriteString(CanonicalizeTasks(live.RecentCompletions))
	suffix.WriteString("\n\n# Situation\n")
	suffix.WriteString(fmt.Sprintf("current_time: %s\n", now.UTC().Format(time.RFC3339)))
	suffix.WriteString(fmt.Sprintf("time_of_day: %s\n", TimeOfDayLabel(now.Hour())))
	suffix.WriteString(fmt.Sprintf("energy_level: %.2f\n", live.EnergyLevel))
	if live.Location != "" {
		suffix.WriteString(fmt.Sprintf("location: %s\n", live.Location))
	}

	p := prefix.String()
	s := suffix.String()
	return Prompt{
		Prefix:       p,
		Suffix:       s,
		PrefixTokens: EstimateTokens(p),
		SuffixTokens: EstimateTokens(s),
	}
}

// TimeOfDayLabel maps an hour of day to the label vocabulary used by
// generated items.
func TimeOfDayLabel(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}
