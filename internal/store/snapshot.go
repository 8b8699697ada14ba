package store

import (
	"go.uber.org/zap"

	"habitsync/internal/model"
)

// Snapshot is an immutable deep copy of the habit collection, captured before
// an optimistic mutation and owned by the coordinator for the lifetime of
// that mutation. Restore is first-class so rollback is testable on its own.
type Snapshot struct {
	habits []*model.Habit
}

// Snapshot captures the full collection by value.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{habits: model.CloneHabits(s.habits)}
}

// Restore puts the collection back exactly as captured. The snapshot itself
// is never handed out, so a defensive double restore is idempotent.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.habits = model.CloneHabits(snap.habits)
	s.mu.Unlock()

	s.logger.Info("Store restored from snapshot", zap.Int("habit_count", len(snap.habits)))
	s.persist()
}
