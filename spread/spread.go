package spread

import (
	"time"

	"devsheet/activity"
	"devsheet/internal/timeutil"
)

// Window is the user-selected reporting span: Days calendar days starting at
// Start's date.
type Window struct {
	Start time.Time
	Days  int
}

func (w Window) End() time.Time {
	return timeutil.AddDays(w.Start, w.Days-1)
}

// Contains reports whether the given timestamp falls on one of the window's
// days.
func (w Window) Contains(value time.Time) bool {
	offset := timeutil.DaysBetween(w.Start, value)
	return offset >= 0 && offset < w.Days
}

// Overlaps reports whether any window day falls inside [min, max].
func (w Window) Overlaps(min, max time.Time) bool {
	return timeutil.DaysBetween(w.Start, max) >= 0 &&
		timeutil.DaysBetween(w.End(), min) <= 0
}

// Entry is one slot of a day's work: either a fresh item, or a continuation
// of an item assigned to an earlier (or, at the window's leading edge, later)
// day.
type Entry struct {
	Item          activity.Item
	Continuation  bool
	ContinuedFrom string
}

type Day struct {
	Date    time.Time
	Entries []Entry
}

// Assignment maps every day of the window to its entries. It is a view built
// fresh per report, never persisted.
type Assignment struct {
	Window Window
	Days   []Day
}

// Spread allocates the item pool across the window's days. Guarantees, in
// priority order: no empty day while the pool is non-empty, chronological
// plausibility (earlier items land on earlier days), and determinism — the
// same pool and window always produce the same assignment.
func Spread(pool []activity.Item, window Window) Assignment {
	items := append([]activity.Item(nil), pool...)
	activity.SortItems(items)

	days := make([]Day, window.Days)
	for i := range days {
		days[i] = Day{Date: timeutil.AddDays(window.Start, i)}
	}
	assignment := Assignment{Window: window, Days: days}

	if len(items) == 0 || window.Days < 1 {
		return assignment
	}

	if len(items) >= window.Days {
		chunkItems(items, assignment.Days)
	} else {
		placeAndCarry(items, window, assignment.Days)
	}
	return assignment
}

// chunkItems splits the sorted pool into contiguous near-equal chunks, one
// per day. The remainder goes to the earliest days so every chunk size
// differs by at most one.
func chunkItems(items []activity.Item, days []Day) {
	base := len(items) / len(days)
	remainder := len(items) % len(days)

	next := 0
	for i := range days {
		size := base
		if i < remainder {
			size++
		}
		for _, item := range items[next : next+size] {
			days[i].Entries = append(days[i].Entries, Entry{Item: item})
		}
		next += size
	}
}

// placeAndCarry handles the sparse pool: each item claims the free day
// nearest its own date, then every remaining day carries the nearest
// preceding assigned item forward as a continuation entry.
func placeAndCarry(items []activity.Item, window Window, days []Day) {
	taken := make([]bool, len(days))
	for _, item := range items {
		day := nearestFreeDay(taken, naturalDay(item, window))
		days[day].Entries = append(days[day].Entries, Entry{Item: item})
		taken[day] = true
	}

	// Forward fill; days before the first assignment have no preceding
	// item, so they borrow the nearest following one instead.
	lastAssigned := -1
	for i := range days {
		if taken[i] {
			lastAssigned = i
			continue
		}
		source := lastAssigned
		if source < 0 {
			source = nextAssigned(taken, i)
		}
		origin := days[source].Entries[0].Item
		days[i].Entries = append(days[i].Entries, Entry{
			Item:          origin,
			Continuation:  true,
			ContinuedFrom: origin.ID,
		})
	}
}

// naturalDay clamps the item's own date into the window's day indexes.
func naturalDay(item activity.Item, window Window) int {
	if window.Contains(item.OccurredAt) {
		return timeutil.DaysBetween(window.Start, item.OccurredAt)
	}
	if timeutil.DaysBetween(window.Start, item.OccurredAt) < 0 {
		return 0
	}
	return window.Days - 1
}

// nearestFreeDay walks outward from the wanted day, preferring the earlier
// side on ties.
func nearestFreeDay(taken []bool, want int) int {
	for distance := 0; distance < len(taken); distance++ {
		if idx := want - distance; idx >= 0 && !taken[idx] {
			return idx
		}
		if idx := want + distance; idx < len(taken) && !taken[idx] {
			return idx
		}
	}
	return want
}

func nextAssigned(taken []bool, from int) int {
	for i := from + 1; i < len(taken); i++ {
		if taken[i] {
			return i
		}
	}
	return from
}
