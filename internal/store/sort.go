package store

import (
	"fmt"
	"sort"
	"strings"
)

// SortMode is the closed set of collection orderings. Dispatch happens in one
// place (SortHabits) instead of scattering mode strings around call sites.
type SortMode int

const (
	// ByAgeAsc orders oldest habit first.
	ByAgeAsc SortMode = iota
	// ByAgeDesc orders newest habit first.
	ByAgeDesc
	// ByCompletion orders by completed-entry count, highest first.
	ByCompletion
)

// ParseSortMode maps the wire-level mode names onto the enum.
func ParseSortMode(input string) (SortMode, error) {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case "older":
		return ByAgeAsc, nil
	case "newer":
		return ByAgeDesc, nil
	case "most-completed":
		return ByCompletion, nil
	default:
		return 0, fmt.Errorf("invalid sort mode: %q", input)
	}
}

// SortHabits reorders the collection in place. The sort is stable: habits
// comparing equal keep their original relative order. Entry data is never
// touched.
func (s *Store) SortHabits(mode SortMode) {
	s.mu.Lock()
	switch mode {
	case ByAgeAsc:
		sort.SliceStable(s.habits, func(i, j int) bool {
			return s.habits[i].CreatedAt.Before(s.habits[j].CreatedAt)
		})
	case ByAgeDesc:
		sort.SliceStable(s.habits, func(i, j int) bool {
			return s.habits[i].CreatedAt.After(s.habits[j].CreatedAt)
		})
	case ByCompletion:
		sort.SliceStable(s.habits, func(i, j int) bool {
			return s.habits[i].CompletedCount > s.habits[j].CompletedCount
		})
	}
	s.mu.Unlock()

	s.persist()
}
