package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"habitsync/internal/model"
	"habitsync/internal/remote"
	"habitsync/internal/stats"
	"habitsync/internal/store"
	"habitsync/pkg/logger"
	"habitsync/pkg/metrics"
)

// CreateHabit runs the create mutation: validate, snapshot, optimistic local
// insert flagged IsCreating, remote create, then settle.
func (c *Coordinator) CreateHabit(ctx context.Context, title, description string) (*model.Habit, error) {
	// Validation errors never reach the store or the remote service.
	if err := store.ValidateTitle(title); err != nil {
		return nil, err
	}

	m := c.begin("create")
	snap := c.store.Snapshot()

	h, err := c.store.CreateHabit(title, description)
	if err != nil {
		return nil, err
	}
	c.store.SetCreating(h.ID, true)
	m.optimistic()
	c.cancelInflight(h.ID)

	remoteID, err := c.remote.CreateHabit(ctx, remote.HabitInput{
		Title:       h.Title,
		Description: h.Description,
	})
	if err != nil {
		c.rollback(m, snap)
		c.Refresh(ctx, h.ID)
		return nil, c.remoteFailure(ctx, "createHabit", err)
	}

	c.store.SetCreating(h.ID, false)
	c.commit(m)
	c.publish("habit.created", map[string]interface{}{
		"habit_id":    remoteID,
		"title":       h.Title,
		"entry_count": len(h.Entries),
	})
	logger.WithTrace(ctx, c.logger).Info("Create mutation committed",
		zap.String("habit_id", h.ID),
		zap.String("remote_id", remoteID),
	)

	c.Refresh(ctx, h.ID)
	// After a successful refresh the collection carries the server id; when
	// the refresh itself failed the habit is still present under its local
	// id. An eventually-consistent list can miss the habit under both ids,
	// in which case the optimistic clone is still the committed truth.
	if refreshed := c.store.Habit(remoteID); refreshed != nil {
		return refreshed, nil
	}
	if local := c.store.Habit(h.ID); local != nil {
		return local, nil
	}
	return h, nil
}

// DeleteHabit runs the delete mutation. Unknown ids are a local no-op and
// never produce a remote call.
func (c *Coordinator) DeleteHabit(ctx context.Context, habitID string) error {
	if c.store.Habit(habitID) == nil {
		c.logger.Debug("DeleteHabit: unknown id, no-op", zap.String("habit_id", habitID))
		return nil
	}

	m := c.begin("delete")
	snap := c.store.Snapshot()

	c.store.SetDeleting(habitID, true)
	c.store.DeleteHabit(habitID)
	m.optimistic()
	c.cancelInflight(habitID)

	if err := c.remote.DeleteHabit(ctx, habitID); err != nil {
		c.rollback(m, snap)
		c.Refresh(ctx, habitID)
		return c.remoteFailure(ctx, "deleteHabit", err)
	}

	c.commit(m)
	c.publish("habit.deleted", map[string]interface{}{
		"habit_id": habitID,
	})
	logger.WithTrace(ctx, c.logger).Info("Delete mutation committed",
		zap.String("habit_id", habitID),
	)

	c.Refresh(ctx, habitID)
	return nil
}

// EditHabit runs the edit mutation over title and description only.
func (c *Coordinator) EditHabit(ctx context.Context, habitID, title, description string) error {
	if err := store.ValidateTitle(title); err != nil {
		return err
	}
	if c.store.Habit(habitID) == nil {
		c.logger.Debug("EditHabit: unknown id, no-op", zap.String("habit_id", habitID))
		return nil
	}

	m := c.begin("edit")
	snap := c.store.Snapshot()

	if _, err := c.store.EditHabit(habitID, title, description); err != nil {
		return err
	}
	m.optimistic()
	c.cancelInflight(habitID)

	err := c.remote.UpdateHabit(ctx, habitID, remote.HabitInput{
		Title:       title,
		Description: description,
	})
	if err != nil {
		c.rollback(m, snap)
		c.Refresh(ctx, habitID)
		return c.remoteFailure(ctx, "updateHabit", err)
	}

	c.commit(m)
	c.publish("habit.updated", map[string]interface{}{
		"habit_id": habitID,
		"title":    title,
	})

	c.Refresh(ctx, habitID)
	return nil
}

// ToggleEntry advances the entry for the given date through the state cycle.
// On a committed toggle it recomputes the streak and, when a new milestone is
// reached, chains an add-badge mutation before the toggle counts as fully
// settled. The chain is deduplicated so a rapid double toggle awards at most
// once per settlement.
func (c *Coordinator) ToggleEntry(ctx context.Context, habitID string, date time.Time) (*model.Habit, error) {
	entry, ok := c.store.EnsureEntry(habitID, date)
	if !ok {
		c.logger.Debug("ToggleEntry: unknown habit, no-op", zap.String("habit_id", habitID))
		return nil, nil
	}

	next := model.Advance(entry.State)

	m := c.begin("toggle")
	snap := c.store.Snapshot()

	c.store.UpdateEntry(habitID, entry.ID, next)
	m.optimistic()
	c.cancelInflight(habitID)

	if err := c.remote.UpdateEntry(ctx, habitID, entry.ID, entry.Date, next); err != nil {
		c.rollback(m, snap)
		c.Refresh(ctx, habitID)
		return nil, c.remoteFailure(ctx, "updateEntry", err)
	}

	c.commit(m)
	c.publish("entry.toggled", map[string]interface{}{
		"habit_id": habitID,
		"entry_id": entry.ID,
		"state":    string(next),
	})

	if err := c.maybeAwardBadges(ctx, habitID, entry.ID, next); err != nil {
		// The toggle itself is committed; a failed badge chain rolls back
		// only its own optimistic apply and is surfaced with the toggle.
		c.Refresh(ctx, habitID)
		return nil, err
	}

	c.Refresh(ctx, habitID)
	return c.store.Habit(habitID), nil
}

// maybeAwardBadges is the chained add-badge mutation triggered by a
// committed toggle. It follows the same snapshot/optimistic/rollback
// protocol as its parent.
func (c *Coordinator) maybeAwardBadges(ctx context.Context, habitID, entryID string, state model.EntryState) error {
	h := c.store.Habit(habitID)
	if h == nil {
		return nil
	}

	streak := c.store.Streak(habitID)
	fresh := stats.FindNewMilestones(streak, h.Badges)
	if fresh == nil {
		return nil
	}

	if c.dedup != nil {
		key := fmt.Sprintf("%s:%s:%s", habitID, entryID, state)
		if !c.dedup.AcquireOnce(ctx, "badge-award", key) {
			c.logger.Debug("Badge award already settled for this toggle",
				zap.String("habit_id", habitID),
				zap.String("entry_id", entryID),
			)
			return nil
		}
	}

	m := c.begin("add-badge")
	snap := c.store.Snapshot()

	c.store.SetBadges(habitID, fresh)
	m.optimistic()

	updated, err := c.remote.AddBadges(ctx, habitID, fresh)
	if err != nil {
		c.rollback(m, snap)
		return c.remoteFailure(ctx, "addBadges", err)
	}

	c.store.SetBadges(habitID, updated)
	c.commit(m)
	for _, milestone := range fresh {
		metrics.IncrementBadgeAward(strconv.Itoa(milestone))
		c.publish("badge.awarded", map[string]interface{}{
			"habit_id":  habitID,
			"milestone": milestone,
			"streak":    streak,
		})
	}
	logger.WithTrace(ctx, c.logger).Info("Badge chain committed",
		zap.String("habit_id", habitID),
		zap.Int("streak", streak),
		zap.Ints("awarded", fresh),
	)
	return nil
}

// SendContactMessage forwards the side-channel contact payload. No store
// interaction, no optimistic phase.
func (c *Coordinator) SendContactMessage(ctx context.Context, msg remote.ContactMessage) (string, error) {
	id, err := c.remote.SendContactMessage(ctx, msg)
	if err != nil {
		return "", c.remoteFailure(ctx, "sendContactMessage", err)
	}
	return id, nil
}
