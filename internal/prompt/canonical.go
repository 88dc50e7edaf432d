package prompt

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pulsefeed/pulse/internal/models"
)

// Canonicalization is the linchpin for prompt-cache reuse: the provider
// charges full price for any prefix that changes by a single byte, so equal
// logical input must always serialize to byte-identical text.

var (
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
	lineTrimRe  = regexp.MustCompile(` +\n`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	crlfReplace = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Canonicalize normalizes free text deterministically: line endings become
// LF, runs of spaces/tabs collapse to one space, runs of blank lines cap at
// one, and the result is trimmed. Idempotent by construction.
func Canonicalize(text string) string {
	s := crlfReplace.Replace(text)
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = lineTrimRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CanonicalizeEntries serializes entries deterministically: sorted by
// creation time ascending with ids breaking ties, one compact JSON object
// per line, keys sorted alphabetically, null fields omitted. Input order
// never affects the output bytes.
func CanonicalizeEntries(entries []*models.Entry) string {
	sorted := make([]*models.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		lines = append(lines, marshalCanonical(entryMap(e)))
	}
	return strings.Join(lines, "\n")
}

// CanonicalizeTasks serializes current tasks deterministically, sorted by
// content key.
func CanonicalizeTasks(tasks []*models.Task) string {
	sorted := make([]*models.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ContentKey < sorted[j].ContentKey
	})

	lines := make([]string, 0, len(sorted))
	for _, t := range sorted {
		lines = append(lines, marshalCanonical(taskMap(t)))
	}
	return strings.Join(lines, "\n")
}

// CanonicalizeCommitments serializes current commitments deterministically,
// sorted by origin entry id.
func CanonicalizeCommitments(commitments []*models.Commitment) string {
	sorted := make([]*models.Commitment, len(commitments))
	copy(sorted, commitments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OriginEntryID < sorted[j].OriginEntryID
	})

	lines := make([]string, 0, len(sorted))
	for _, c := range sorted {
		lines = append(lines, marshalCanonical(commitmentMap(c)))
	}
	return strings.Join(lines, "\n")
}

// marshalCanonical relies on encoding/json sorting map keys alphabetically,
// which keeps the serialization independent of Go map iteration order.
func marshalCanonical(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		// Maps of strings and numbers cannot fail to marshal.
		return "{}"
	}
	return string(b)
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func entryMap(e *models.Entry) map[string]any {
	m := map[string]any{
		"id":         e.ID,
		"text":       Canonicalize(e.Text),
		"created_at": canonicalTime(e.CreatedAt),
	}
	if e.RootID != nil {
		m["root_id"] = *e.RootID
	}
	if e.ParentID != nil {
		m["parent_id"] = *e.ParentID
	}
	if e.TaskKey != nil {
		m["task_key"] = *e.TaskKey
	}
	if e.CommitmentID != nil {
		m["commitment_id"] = *e.CommitmentID
	}
	if e.EventType != nil {
		m["event_type"] = string(*e.EventType)
	}
	if e.ActionContext != nil {
		ac := map[string]any{}
		if e.ActionContext.FeedVersion != 0 {
			ac["feed_version"] = e.ActionContext.FeedVersion
		}
		if e.ActionContext.ItemID != "" {
			ac["item_id"] = e.ActionContext.ItemID
		}
		if e.ActionContext.Action != "" {
			ac["action"] = e.ActionContext.Action
		}
		m["action_context"] = ac
	}
	return m
}

func taskMap(t *models.Task) map[string]any {
	m := map[string]any{
		"content": t.Content,
		"status":  string(t.Status),
	}
	if t.CommitmentEntryID != nil {
		m["commitment_entry_id"] = *t.CommitmentEntryID
	}
	if t.CompletedAt != nil {
		m["completed_at"] = canonicalTime(*t.CompletedAt)
	}
	return m
}

func commitmentMap(c *models.Commitment) map[string]any {
	m := map[string]any{
		"origin_entry_id": c.OriginEntryID,
		"content":         c.Content,
		"strength":        string(c.Strength),
		"status":          string(c.Status),
		"horizon_type":    string(c.Horizon.Type),
	}
	if c.Horizon.Value != "" {
		m["horizon_value"] = c.Horizon.Value
	}
	if c.HorizonText != "" {
		m["horizon_text"] = c.HorizonText
	}
	return m
}
