// Package dateutil provides the pure calendar arithmetic the streak engine
// and the store's month bucketing are built on. All comparisons go through
// StartOfDay so time-of-day never leaks into day-granularity logic.
package dateutil

import "time"

// StartOfDay truncates a timestamp to midnight local time. The calendar day
// is taken from the value's own location, but the result is always anchored
// in time.Local: dates arriving from postgres or a JSON round-trip carry
// other locations, and the canonical key must compare equal (including as a
// map key) regardless of where the value came from.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// IsSameDay compares calendar days, ignoring time-of-day and location.
func IsSameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func IsToday(t time.Time) bool {
	return IsSameDay(t, time.Now())
}

// IsPast reports whether t is today or earlier. Today is deliberately
// included: an entry for today is actionable for toggling.
func IsPast(t time.Time) bool {
	return IsPastAt(t, time.Now())
}

// IsPastAt is IsPast with an explicit clock, for deterministic callers.
func IsPastAt(t, now time.Time) bool {
	return !StartOfDay(now).Before(StartOfDay(t))
}

func IsThisMonth(t time.Time) bool {
	now := time.Now()
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// AllDaysInMonth returns every calendar day of the given month in ascending
// order. Month length comes from calendar rollover, never a hardcoded count.
func AllDaysInMonth(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	nextMonth := first.AddDate(0, 1, 0)
	var days []time.Time
	for d := first; d.Before(nextMonth); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DaysInRange returns the inclusive day-granularity range [start, end] in
// ascending order. Empty when start is after end.
func DaysInRange(start, end time.Time) []time.Time {
	from := StartOfDay(start)
	to := StartOfDay(end)
	if from.After(to) {
		return nil
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// MonthsInRange returns first-of-month markers for every month touched by the
// inclusive range [start, end], ascending.
func MonthsInRange(start, end time.Time) []time.Time {
	from := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	to := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	if from.After(to) {
		return nil
	}
	var months []time.Time
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
