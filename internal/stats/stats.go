// Package stats derives streaks, completion totals, and milestone eligibility
// from a habit's raw entry log. Everything here is a pure function; the store
// calls these after each mutation rather than recomputing inline.
package stats

import (
	"sort"
	"time"

	"habitsync/internal/dateutil"
	"habitsync/internal/model"
)

// Totals holds the per-state counts the store maintains on every habit.
type Totals struct {
	Completed int
	Failed    int
}

// ComputeTotals counts entries by state in one pass.
func ComputeTotals(entries []model.Entry) Totals {
	var t Totals
	for _, e := range entries {
		switch e.State {
		case model.StateCompleted:
			t.Completed++
		case model.StateFailed:
			t.Failed++
		}
	}
	return t
}

// ComputeStreak counts consecutive completed entries scanning backward from
// today. The scan window is bounded to the days elapsed in the current month
// (streakWindowDays), so a streak that began in a prior month is NOT fully
// counted. That boundary behavior is inherited from the original tracker and
// kept as-is; see DESIGN.md before changing it.
func ComputeStreak(entries []model.Entry, now time.Time) int {
	window := streakWindowDays(now)
	byDay := make(map[time.Time]model.EntryState, len(entries))
	for _, e := range entries {
		byDay[dateutil.StartOfDay(e.Date)] = e.State
	}

	streak := 0
	day := dateutil.StartOfDay(now)
	for i := 0; i < window; i++ {
		if byDay[day] != model.StateCompleted {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// streakWindowDays is the look-back bound: days elapsed in the current month,
// today included.
func streakWindowDays(now time.Time) int {
	return now.Day()
}

// FindNewMilestones returns every milestone value reached by the streak that
// is not already badged, ascending. It returns nil (not an empty slice) when
// nothing new applies; callers use that to skip the follow-up add-badge
// mutation entirely.
func FindNewMilestones(currentStreak int, existingBadges []int) []int {
	if currentStreak <= 0 {
		return nil
	}
	owned := make(map[int]bool, len(existingBadges))
	for _, b := range existingBadges {
		owned[b] = true
	}

	var fresh []int
	for _, m := range model.Milestones {
		if m > currentStreak {
			break
		}
		if !owned[m] {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return fresh
}

// MergeBadges folds newly awarded milestones into an existing badge list,
// keeping it sorted and unique.
func MergeBadges(existing, awarded []int) []int {
	seen := make(map[int]bool, len(existing)+len(awarded))
	merged := make([]int, 0, len(existing)+len(awarded))
	for _, b := range existing {
		if !seen[b] {
			seen[b] = true
			merged = append(merged, b)
		}
	}
	for _, b := range awarded {
		if !seen[b] {
			seen[b] = true
			merged = append(merged, b)
		}
	}
	sort.Ints(merged)
	return merged
}
