// Package store holds the in-memory authoritative habit collection. Every
// mutation runs under the store mutex and completes synchronously, so outside
// readers only ever observe the pre- or fully-post-mutation state. The remote
// document store stays the source of truth; an optional redis cache keeps a
// serialized copy purely for warm restarts.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"habitsync/internal/dateutil"
	"habitsync/internal/model"
	"habitsync/internal/stats"
)

type Store struct {
	mu     sync.RWMutex
	habits []*model.Habit

	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

func New(logger *zap.Logger) *Store {
	return &Store{
		logger: logger,
		now:    time.Now,
	}
}

// WithCache attaches a write-behind cache persisted after every mutation.
func (s *Store) WithCache(c Cache) *Store {
	s.cache = c
	return s
}

// WithClock overrides the store clock. Tests use this to pin "today".
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Habits returns a deep copy of the collection in its current order.
func (s *Store) Habits() []*model.Habit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneHabits(s.habits)
}

// Habit returns a deep copy of one habit, or nil when the id is unknown.
func (s *Store) Habit(id string) *model.Habit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h := s.find(id); h != nil {
		return h.Clone()
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.habits)
}

// CreateHabit validates the title, builds a habit with pending entries for
// every day of the current month, and prepends it to the collection.
func (s *Store) CreateHabit(title, description string) (*model.Habit, error) {
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	now := s.now()
	days := dateutil.AllDaysInMonth(now.Year(), now.Month())
	entries := make([]model.Entry, 0, len(days))
	for _, d := range days {
		entries = append(entries, model.Entry{
			ID:    uuid.NewString(),
			Date:  d,
			State: model.StatePending,
		})
	}

	h := &model.Habit{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(title),
		Description: description,
		CreatedAt:   now,
		Entries:     entries,
		Badges:      []int{},
	}

	s.mu.Lock()
	s.habits = append([]*model.Habit{h}, s.habits...)
	s.mu.Unlock()

	s.logger.Info("Habit created",
		zap.String("habit_id", h.ID),
		zap.String("title", h.Title),
		zap.Int("entry_count", len(h.Entries)),
	)
	s.persist()
	return h.Clone(), nil
}

// DeleteHabit removes the habit and, with it, all of its entries. Unknown ids
// are a silent no-op.
func (s *Store) DeleteHabit(id string) bool {
	s.mu.Lock()
	removed := false
	for i, h := range s.habits {
		if h.ID == id {
			s.habits = append(s.habits[:i], s.habits[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.logger.Info("Habit deleted", zap.String("habit_id", id))
		s.persist()
	} else {
		s.logger.Debug("DeleteHabit: unknown id, no-op", zap.String("habit_id", id))
	}
	return removed
}

// EditHabit replaces title and description. CreatedAt, entries, and badges
// are untouched. Unknown ids are a no-op.
func (s *Store) EditHabit(id, title, description string) (bool, error) {
	if err := ValidateTitle(title); err != nil {
		return false, err
	}

	s.mu.Lock()
	h := s.find(id)
	if h == nil {
		s.mu.Unlock()
		s.logger.Debug("EditHabit: unknown id, no-op", zap.String("habit_id", id))
		return false, nil
	}
	h.Title = strings.TrimSpace(title)
	h.Description = description
	s.mu.Unlock()

	s.persist()
	return true, nil
}

// UpdateEntry sets the targeted entry's state and recomputes the habit's
// completed/failed totals in the same operation. Unknown habit or entry ids
// are a no-op.
func (s *Store) UpdateEntry(habitID, entryID string, state model.EntryState) (model.Entry, bool) {
	s.mu.Lock()
	h := s.find(habitID)
	if h == nil {
		s.mu.Unlock()
		s.logger.Debug("UpdateEntry: unknown habit, no-op", zap.String("habit_id", habitID))
		return model.Entry{}, false
	}

	var updated model.Entry
	found := false
	for i := range h.Entries {
		if h.Entries[i].ID == entryID {
			h.Entries[i].State = state
			updated = h.Entries[i]
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		s.logger.Debug("UpdateEntry: unknown entry, no-op",
			zap.String("habit_id", habitID),
			zap.String("entry_id", entryID),
		)
		return model.Entry{}, false
	}

	totals := stats.ComputeTotals(h.Entries)
	h.CompletedCount = totals.Completed
	h.FailedCount = totals.Failed
	s.mu.Unlock()

	s.persist()
	return updated, true
}

// EnsureEntry returns the habit's entry for the given date, synthesizing a
// pending one when the month bucket does not contain it yet.
func (s *Store) EnsureEntry(habitID string, date time.Time) (model.Entry, bool) {
	day := dateutil.StartOfDay(date)

	s.mu.Lock()
	h := s.find(habitID)
	if h == nil {
		s.mu.Unlock()
		return model.Entry{}, false
	}
	for _, e := range h.Entries {
		if dateutil.IsSameDay(e.Date, day) {
			s.mu.Unlock()
			return e, true
		}
	}
	e := model.Entry{
		ID:    uuid.NewString(),
		Date:  day,
		State: model.StatePending,
	}
	h.Entries = append(h.Entries, e)
	sortEntriesByDate(h.Entries)
	s.mu.Unlock()

	s.logger.Debug("Entry synthesized",
		zap.String("habit_id", habitID),
		zap.String("date", day.Format("2006-01-02")),
	)
	s.persist()
	return e, true
}

// AddHabitMonth extends the habit's tracked window with pending entries,
// month by month, until the current month is covered. Calling it again within
// the same month is a no-op, so the tracked boundary never duplicates or
// skips a month.
func (s *Store) AddHabitMonth(habitID string) bool {
	s.mu.Lock()
	h := s.find(habitID)
	if h == nil {
		s.mu.Unlock()
		return false
	}

	latest := h.CreatedAt
	for _, e := range h.Entries {
		if e.Date.After(latest) {
			latest = e.Date
		}
	}

	current := s.now()
	currentMonth := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, current.Location())
	tracked := time.Date(latest.Year(), latest.Month(), 1, 0, 0, 0, 0, latest.Location())

	added := 0
	for tracked.Before(currentMonth) {
		tracked = tracked.AddDate(0, 1, 0)
		for _, d := range dateutil.AllDaysInMonth(tracked.Year(), tracked.Month()) {
			h.Entries = append(h.Entries, model.Entry{
				ID:    uuid.NewString(),
				Date:  d,
				State: model.StatePending,
			})
			added++
		}
	}
	s.mu.Unlock()

	if added > 0 {
		s.logger.Info("Habit month window extended",
			zap.String("habit_id", habitID),
			zap.Int("entries_added", added),
		)
		s.persist()
	}
	return true
}

// SetBadges replaces the habit's badge list with a sorted, unique merge of
// the existing badges and the newly awarded ones.
func (s *Store) SetBadges(habitID string, awarded []int) ([]int, bool) {
	s.mu.Lock()
	h := s.find(habitID)
	if h == nil {
		s.mu.Unlock()
		return nil, false
	}
	h.Badges = stats.MergeBadges(h.Badges, awarded)
	merged := make([]int, len(h.Badges))
	copy(merged, h.Badges)
	s.mu.Unlock()

	s.persist()
	return merged, true
}

// Streak computes the habit's current streak from its entry log.
func (s *Store) Streak(habitID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.find(habitID)
	if h == nil {
		return 0
	}
	return stats.ComputeStreak(h.Entries, s.now())
}

// SetCreating flags a habit while its remote create is in flight.
func (s *Store) SetCreating(habitID string, v bool) {
	s.setFlag(habitID, func(h *model.Habit) { h.IsCreating = v })
}

// SetDeleting flags a habit while its remote delete is in flight.
func (s *Store) SetDeleting(habitID string, v bool) {
	s.setFlag(habitID, func(h *model.Habit) { h.IsDeleting = v })
}

func (s *Store) setFlag(habitID string, apply func(*model.Habit)) {
	s.mu.Lock()
	if h := s.find(habitID); h != nil {
		apply(h)
	}
	s.mu.Unlock()
}

// Replace swaps the whole collection for a fresh copy fetched from the remote
// store. Used by the coordinator's refresh-on-settle step.
func (s *Store) Replace(habits []*model.Habit) {
	fresh := model.CloneHabits(habits)
	for _, h := range fresh {
		totals := stats.ComputeTotals(h.Entries)
		h.CompletedCount = totals.Completed
		h.FailedCount = totals.Failed
	}

	s.mu.Lock()
	s.habits = fresh
	s.mu.Unlock()

	s.logger.Debug("Store replaced from remote", zap.Int("habit_count", len(fresh)))
	s.persist()
}

// find must be called with the mutex held.
func (s *Store) find(id string) *model.Habit {
	for _, h := range s.habits {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// ValidateTitle enforces the habit-title contract shared by create and edit.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len([]rune(trimmed)) > model.MaxTitleLength {
		return &ValidationError{Field: "title", Reason: "must be at most 30 characters"}
	}
	return nil
}

func sortEntriesByDate(entries []model.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
}
