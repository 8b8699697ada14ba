package model

import "time"

// MaxTitleLength bounds habit titles; anything longer is rejected before the
// store is touched.
const MaxTitleLength = 30

// Milestones is the fixed, ordered set of streak lengths that award a badge.
// Read-only; never mutated at runtime.
var Milestones = []int{7, 14, 21, 30, 60, 120, 365}

type Entry struct {
	ID    string     `json:"id"`
	Date  time.Time  `json:"date"`
	State EntryState `json:"state"`
}

type Habit struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Entries     []Entry   `json:"entries"`
	Badges      []int     `json:"badges"`

	// Maintained incrementally by the store on every entry mutation so reads
	// never rescan the full log.
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`

	// Optimistic-phase markers set by the coordinator while the matching
	// remote call is in flight.
	IsCreating bool `json:"is_creating,omitempty"`
	IsDeleting bool `json:"is_deleting,omitempty"`
}

// Clone returns a deep copy. Snapshots and restores must never share entry or
// badge slices with the live collection.
func (h *Habit) Clone() *Habit {
	c := *h
	c.Entries = make([]Entry, len(h.Entries))
	copy(c.Entries, h.Entries)
	c.Badges = make([]int, len(h.Badges))
	copy(c.Badges, h.Badges)
	return &c
}

// CloneHabits deep-copies a whole collection preserving order.
func CloneHabits(habits []*Habit) []*Habit {
	out := make([]*Habit, len(habits))
	for i, h := range habits {
		out[i] = h.Clone()
	}
	return out
}
