package activity

import (
	"sort"
	"time"
)

// Source tags where a work item came from.
type Source string

const (
	SourceCode  Source = "code"
	SourceIssue Source = "issue"
)

// Item is one unit of evidence of work, from either commit history or an
// issue tracker. IDs derive from the source's natural key (commit hash, or
// issue-key#worklog-id) and are unique within a Log.
type Item struct {
	ID             string
	Source         Source
	OccurredAt     time.Time
	AuthorRaw      string
	AuthorResolved string
	RawText        string
	EnrichedText   string
	LinkedRefs     []string
}

// RawCommit is a commit record as delivered by the source-control fetcher.
type RawCommit struct {
	Hash       string
	AuthorRaw  string
	OccurredAt time.Time
	Message    string
	Branch     string
}

// RawWorklog is one logged work entry attached to an issue.
type RawWorklog struct {
	ID           string
	Started      time.Time
	Comment      string
	SpentSeconds int
}

// RawIssue is an issue record as delivered by the issue-tracker fetcher.
type RawIssue struct {
	Key       string
	AuthorRaw string
	UpdatedAt time.Time
	Summary   string
	Worklogs  []RawWorklog
}

// Log is the ordered collection of work items for one person/project pairing.
type Log struct {
	items []Item
	index map[string]int
}

func NewLog() *Log {
	return &Log{index: make(map[string]int)}
}

// Add merges the item into the log. An item whose ID is already present does
// not create a new entry; its linked refs are unioned into the existing one.
// Returns true when a new entry was created.
func (l *Log) Add(item Item) bool {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if pos, exists := l.index[item.ID]; exists {
		existing := &l.items[pos]
		existing.LinkedRefs = unionRefs(existing.LinkedRefs, item.LinkedRefs)
		if existing.EnrichedText == "" && item.EnrichedText != "" {
			existing.EnrichedText = item.EnrichedText
		}
		return false
	}

	item.LinkedRefs = unionRefs(nil, item.LinkedRefs)
	l.index[item.ID] = len(l.items)
	l.items = append(l.items, item)
	return true
}

// LinkRef adds a ref to the item with the given ID, keeping refs sorted and
// deduplicated. Returns false when the item is not in the log.
func (l *Log) LinkRef(id, ref string) bool {
	pos, exists := l.index[id]
	if !exists {
		return false
	}
	l.items[pos].LinkedRefs = unionRefs(l.items[pos].LinkedRefs, []string{ref})
	return true
}

// SetEnriched fills the enriched text of the item with the given ID.
func (l *Log) SetEnriched(id, text string) bool {
	pos, exists := l.index[id]
	if !exists {
		return false
	}
	l.items[pos].EnrichedText = text
	return true
}

// Get returns a copy of the item with the given ID.
func (l *Log) Get(id string) (Item, bool) {
	pos, exists := l.index[id]
	if !exists {
		return Item{}, false
	}
	return copyItem(l.items[pos]), true
}

// Items returns the log's items ordered by (OccurredAt, ID). The returned
// slice is independent of the log's internal state.
func (l *Log) Items() []Item {
	out := make([]Item, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, copyItem(item))
	}
	SortItems(out)
	return out
}

func (l *Log) Len() int {
	return len(l.items)
}

// Range returns the earliest and latest item timestamps. ok is false for an
// empty log.
func (l *Log) Range() (min, max time.Time, ok bool) {
	if len(l.items) == 0 {
		return time.Time{}, time.Time{}, false
	}
	min = l.items[0].OccurredAt
	max = l.items[0].OccurredAt
	for _, item := range l.items[1:] {
		if item.OccurredAt.Before(min) {
			min = item.OccurredAt
		}
		if item.OccurredAt.After(max) {
			max = item.OccurredAt
		}
	}
	return min, max, true
}

// SortItems orders items by timestamp with the ID as a stable tie-break.
func SortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].OccurredAt.Equal(items[j].OccurredAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})
}

func copyItem(item Item) Item {
	out := item
	out.LinkedRefs = append([]string(nil), item.LinkedRefs...)
	return out
}

func unionRefs(existing, extra []string) []string {
	if len(extra) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(extra))
	merged := make([]string, 0, len(existing)+len(extra))
	for _, ref := range existing {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, ref)
	}
	for _, ref := range extra {
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, ref)
	}
	sort.Strings(merged)
	return merged
}
