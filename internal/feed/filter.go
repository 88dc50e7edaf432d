package feed

import (
	"sort"
	"strings"
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

const (
	// similarityThreshold is the containment ratio above which two
	// normalized contents count as the same item.
	similarityThreshold = 0.7
	// overwhelmSoftLimit triggers priority-based trimming.
	overwhelmSoftLimit = 5
	// overwhelmMinScore is the composite priority an item needs to survive
	// trimming.
	overwhelmMinScore = 0.5
	// overwhelmHardCap is the absolute ceiling on surfaced items.
	overwhelmHardCap = 7

	// energyFloor and urgencyCeiling drive energy suppression: high-urgency
	// items are hidden from a low-energy user.
	energyFloor    = 0.4
	urgencyCeiling = 0.7

	// recentCompletionWindow suppresses items echoing a just-finished task.
	recentCompletionWindow = 2 * time.Hour
)

// FilterAndRank runs the dedup/suppression pipeline and final ranking. It
// is a pure function of (items, live context, now): no side effects, no
// LLM, independently testable. Steps run in a fixed order because later
// steps assume earlier ones already removed their duplicates.
func FilterAndRank(items []models.GeneratedItem, live *models.LiveContext, now time.Time) []models.GeneratedItem {
	out := dedupPotentialCommitments(items)
	out = dedupCommitmentRefs(out, live)
	out = dedupContent(out, live)
	out = suppressTimeOfDay(out, now.Hour())
	out = suppressEnergy(out, live.EnergyLevel)
	out = suppressRecentCompletions(out, live.RecentCompletions, now)
	out = capOverwhelm(out)
	sortByPriority(out)
	return out
}

// dedupPotentialCommitments groups potential-commitment items by dedup key
// (falling back to item id) and keeps the highest-priority one per group.
func dedupPotentialCommitments(items []models.GeneratedItem) []models.GeneratedItem {
	best := make(map[string]int)
	out := make([]models.GeneratedItem, 0, len(items))

	for _, item := range items {
		if item.Type != models.ItemPotentialCommitment {
			out = append(out, item)
			continue
		}
		key := item.DedupKey
		if key == "" {
			key = item.ID
		}
		if idx, seen := best[key]; seen {
			if item.Priority() > out[idx].Priority() {
				out[idx] = item
			}
			continue
		}
		out = append(out, item)
		best[key] = len(out) - 1
	}

	return out
}

// dedupCommitmentRefs drops an item referencing a commitment that already
// has an open task, or that an earlier item in this batch already claimed.
func dedupCommitmentRefs(items []models.GeneratedItem, live *models.LiveContext) []models.GeneratedItem {
	claimed := make(map[int64]bool)
	for _, t := range live.ActiveTasks {
		if t.CommitmentEntryID != nil && t.Status != models.TaskCompleted {
			claimed[*t.CommitmentEntryID] = true
		}
	}

	out := items[:0]
	for _, item := range items {
		if item.RelatedCommitmentID != nil {
			id := *item.RelatedCommitmentID
			if claimed[id] {
				continue
			}
			claimed[id] = true
		}
		out = append(out, item)
	}
	return out
}

// dedupContent drops items whose normalized content matches an active task
// exactly or by the containment heuristic.
func dedupContent(items []models.GeneratedItem, live *models.LiveContext) []models.GeneratedItem {
	out := items[:0]
	for _, item := range items {
		norm := models.NormalizeContent(item.Content)
		dup := false
		for _, t := range live.ActiveTasks {
			if contentSimilar(norm, models.NormalizeContent(t.Content)) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return out
}

// contentSimilar reports identity or >=70% containment: the shorter string
// is contained in the longer and is at least 70% of its length.
func contentSimilar(a, b string) bool {
	if a == b {
		return a != ""
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if shorter == "" || longer == "" {
		return false
	}
	if !strings.Contains(longer, shorter) {
		return false
	}
	return float64(len(shorter)) >= similarityThreshold*float64(len(longer))
}

// suppressTimeOfDay drops evening/night items in the morning block
// (hour in [5,12)) and morning/early items in the evening block
// (hour in [17,21)).
func suppressTimeOfDay(items []models.GeneratedItem, hour int) []models.GeneratedItem {
	morningNow := hour >= 5 && hour < 12
	eveningNow := hour >= 17 && hour < 21

	out := items[:0]
	for _, item := range items {
		tod := strings.ToLower(item.TimeOfDay)
		if morningNow && (tod == "evening" || tod == "night") {
			continue
		}
		if eveningNow && (tod == "morning" || tod == "early") {
			continue
		}
		out = append(out, item)
	}
	return out
}

// suppressEnergy drops high-urgency items when the user's energy is low.
func suppressEnergy(items []models.GeneratedItem, energy float64) []models.GeneratedItem {
	if energy >= energyFloor {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.Urgency > urgencyCeiling {
			continue
		}
		out = append(out, item)
	}
	return out
}

// suppressRecentCompletions drops items similar to a task completed within
// the suppression window.
func suppressRecentCompletions(items []models.GeneratedItem, completions []*models.Task, now time.Time) []models.GeneratedItem {
	cutoff := now.Add(-recentCompletionWindow)
	var recent []string
	for _, t := range completions {
		if t.CompletedAt != nil && t.CompletedAt.After(cutoff) {
			recent = append(recent, models.NormalizeContent(t.Content))
		}
	}
	if len(recent) == 0 {
		return items
	}

	out := items[:0]
	for _, item := range items {
		norm := models.NormalizeContent(item.Content)
		echoed := false
		for _, done := range recent {
			if contentSimilar(norm, done) {
				echoed = true
				break
			}
		}
		if !echoed {
			out = append(out, item)
		}
	}
	return out
}

// capOverwhelm trims the list when more than the soft limit survive: only
// items at or above the minimum composite priority stay, hard-capped.
func capOverwhelm(items []models.GeneratedItem) []models.GeneratedItem {
	if len(items) <= overwhelmSoftLimit {
		return items
	}

	sortByPriority(items)
	out := items[:0]
	for _, item := range items {
		if item.Priority() >= overwhelmMinScore {
			out = append(out, item)
		}
		if len(out) == overwhelmHardCap {
			break
		}
	}
	return out
}

// sortByPriority orders items by composite priority descending; ids break
// ties to keep the order deterministic.
func sortByPriority(items []models.GeneratedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].Priority(), items[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return items[i].ID < items[j].ID
	})
}
