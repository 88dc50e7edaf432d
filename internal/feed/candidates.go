package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

// Weights for candidate scoring. Importance leans on commitment strength
// and the actionability signal; urgency on horizon proximity and task state.
const (
	candidateSignalWeight    = 0.3
	candidateTimeAlignBonus  = 0.1
	candidateDateDueSoonDays = 2
)

var strengthImportance = map[models.CommitmentStrength]float64{
	models.StrengthWeak:   0.4,
	models.StrengthMedium: 0.6,
	models.StrengthStrong: 0.9,
}

var horizonUrgency = map[models.HorizonType]float64{
	models.HorizonDate:       0.7,
	models.HorizonDaily:      0.8,
	models.HorizonWeekly:     0.6,
	models.HorizonMonthly:    0.4,
	models.HorizonContinuous: 0.3,
	models.HorizonMaintain:   0.3,
}

var taskStatusUrgency = map[models.TaskStatus]float64{
	models.TaskStarted: 0.7,
	models.TaskPaused:  0.6,
	models.TaskPlanned: 0.5,
}

// BuildCandidates derives structured feed candidates directly from current
// tasks, commitments and signals, without an LLM. The result feeds the
// same filter pipeline as generated output and doubles as the
// deterministic fallback when generation fails validation.
func BuildCandidates(live *models.LiveContext, signals []*models.Signal, now time.Time) []models.GeneratedItem {
	actionability := make(map[int64]float64)
	for _, s := range signals {
		if s.Key == models.SignalActionability {
			actionability[s.EntryID] = s.Value
		}
	}

	var items []models.GeneratedItem

	claimed := make(map[int64]bool)
	for _, t := range live.ActiveTasks {
		if t.CommitmentEntryID != nil {
			claimed[*t.CommitmentEntryID] = true
		}
		item := models.GeneratedItem{
			ID:             "task:" + t.ContentKey,
			Type:           models.ItemTask,
			Content:        phraseTask(t),
			Urgency:        taskStatusUrgency[t.Status],
			Importance:     0.5,
			RelatedTaskKey: &t.ContentKey,
		}
		if t.CommitmentEntryID != nil {
			id := *t.CommitmentEntryID
			item.RelatedCommitmentID = &id
		}
		items = append(items, item)
	}

	for _, c := range live.ActiveCommitments {
		if !c.IsOpen() || claimed[c.OriginEntryID] {
			continue
		}
		id := c.OriginEntryID
		urgency := commitmentUrgency(c, now)
		importance := strengthImportance[c.Strength]
		if importance == 0 {
			importance = 0.5
		}
		if a, ok := actionability[c.OriginEntryID]; ok {
			importance = (1-candidateSignalWeight)*importance + candidateSignalWeight*a
		}
		item := models.GeneratedItem{
			ID:                  "commitment:" + strconv.FormatInt(id, 10),
			Type:                models.ItemTask,
			Content:             fmt.Sprintf("Take a step on: %s", c.Content),
			Urgency:             urgency,
			Importance:          importance,
			RelatedCommitmentID: &id,
			TimeOfDay:           horizonTimeOfDay(c.Horizon.Type),
		}
		if item.TimeOfDay != "" && item.TimeOfDay == timeOfDayBand(now.Hour()) {
			score := clamp01(item.Urgency*item.Importance + candidateTimeAlignBonus)
			item.PriorityScore = &score
		}
		items = append(items, item)
	}

	return items
}

func phraseTask(t *models.Task) string {
	switch t.Status {
	case models.TaskStarted:
		return fmt.Sprintf("Keep going on: %s", t.Content)
	case models.TaskPaused:
		return fmt.Sprintf("Pick back up: %s", t.Content)
	default:
		return fmt.Sprintf("Start: %s", t.Content)
	}
}

// commitmentUrgency maps the structured horizon to urgency; dated horizons
// ramp to 1.0 as the date approaches or passes.
func commitmentUrgency(c *models.Commitment, now time.Time) float64 {
	base := horizonUrgency[c.Horizon.Type]
	if base == 0 {
		base = 0.5
	}
	if c.Horizon.Type == models.HorizonDate && c.Horizon.Value != "" {
		due, err := time.Parse("2006-01-02", c.Horizon.Value)
		if err == nil {
			daysLeft := due.Sub(now).Hours() / 24
			if daysLeft <= candidateDateDueSoonDays {
				return 1.0
			}
			if daysLeft <= 7 {
				return 0.8
			}
		}
	}
	return base
}

func horizonTimeOfDay(ht models.HorizonType) string {
	if ht == models.HorizonDaily {
		return "morning"
	}
	return ""
}

func timeOfDayBand(hour int) string {
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
