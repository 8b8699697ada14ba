package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"habitsync/internal/dateutil"
	"habitsync/internal/model"
	"habitsync/internal/stats"
	"habitsync/pkg/metrics"
)

// PostgresService implements the document store contract on top of Postgres.
// Habit documents live in the habits table, entries nested by habit_id.
type PostgresService struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresService(db *pgxpool.Pool, logger *zap.Logger) *PostgresService {
	return &PostgresService{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the backing tables when they do not exist yet.
func (s *PostgresService) EnsureSchema(ctx context.Context) error {
	schema := `
        CREATE TABLE IF NOT EXISTS habits (
            id          TEXT PRIMARY KEY,
            title       TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            badges      INT[] NOT NULL DEFAULT '{}',
            created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS entries (
            id       TEXT PRIMARY KEY,
            habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
            date     DATE NOT NULL,
            state    TEXT NOT NULL DEFAULT 'pending',
            UNIQUE (habit_id, date)
        );
        CREATE TABLE IF NOT EXISTS contact_messages (
            id         TEXT PRIMARY KEY,
            name       TEXT NOT NULL,
            email      TEXT NOT NULL,
            message    TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// CreateHabit inserts the habit document and seeds pending entries for every
// day of the current month, in one transaction.
func (s *PostgresService) CreateHabit(ctx context.Context, data HabitInput) (string, error) {
	start := time.Now()
	s.logger.Debug("Creating habit document", zap.String("title", data.Title))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		metrics.RecordRemoteCallLatency("createHabit", "error", time.Since(start))
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	habitID := uuid.NewString()
	_, err = tx.Exec(ctx,
		`INSERT INTO habits (id, title, description) VALUES ($1, $2, $3)`,
		habitID, data.Title, data.Description,
	)
	if err != nil {
		s.logger.Error("Failed to insert habit", zap.Error(err))
		metrics.RecordRemoteCallLatency("createHabit", "error", time.Since(start))
		return "", err
	}

	now := time.Now()
	for _, d := range dateutil.AllDaysInMonth(now.Year(), now.Month()) {
		_, err = tx.Exec(ctx,
			`INSERT INTO entries (id, habit_id, date, state) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), habitID, d, model.StatePending,
		)
		if err != nil {
			s.logger.Error("Failed to seed entry", zap.Error(err))
			metrics.RecordRemoteCallLatency("createHabit", "error", time.Since(start))
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordRemoteCallLatency("createHabit", "error", time.Since(start))
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("Habit document created",
		zap.String("habit_id", habitID),
		zap.String("title", data.Title),
	)
	metrics.RecordRemoteCallLatency("createHabit", "success", time.Since(start))
	return habitID, nil
}

func (s *PostgresService) UpdateHabit(ctx context.Context, habitID string, data HabitInput) error {
	start := time.Now()
	_, err := s.db.Exec(ctx,
		`UPDATE habits SET title = $1, description = $2 WHERE id = $3`,
		data.Title, data.Description, habitID,
	)
	if err != nil {
		s.logger.Error("Failed to update habit", zap.String("habit_id", habitID), zap.Error(err))
		metrics.RecordRemoteCallLatency("updateHabit", "error", time.Since(start))
		return err
	}
	metrics.RecordRemoteCallLatency("updateHabit", "success", time.Since(start))
	return nil
}

func (s *PostgresService) ListHabitsWithEntries(ctx context.Context) ([]*model.Habit, error) {
	start := time.Now()

	rows, err := s.db.Query(ctx,
		`SELECT id, title, description, badges, created_at FROM habits ORDER BY created_at DESC`,
	)
	if err != nil {
		s.logger.Error("Failed to list habits", zap.Error(err))
		metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
		return nil, err
	}
	defer rows.Close()

	var habits []*model.Habit
	byID := make(map[string]*model.Habit)
	for rows.Next() {
		h := &model.Habit{}
		if err := rows.Scan(&h.ID, &h.Title, &h.Description, &h.Badges, &h.CreatedAt); err != nil {
			s.logger.Error("Failed to scan habit", zap.Error(err))
			metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
			return nil, err
		}
		if h.Badges == nil {
			h.Badges = []int{}
		}
		habits = append(habits, h)
		byID[h.ID] = h
	}
	if err := rows.Err(); err != nil {
		metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
		return nil, err
	}

	entryRows, err := s.db.Query(ctx,
		`SELECT id, habit_id, date, state FROM entries ORDER BY date ASC`,
	)
	if err != nil {
		s.logger.Error("Failed to list entries", zap.Error(err))
		metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
		return nil, err
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var e model.Entry
		var habitID string
		if err := entryRows.Scan(&e.ID, &habitID, &e.Date, &e.State); err != nil {
			s.logger.Error("Failed to scan entry", zap.Error(err))
			metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
			return nil, err
		}
		if h, ok := byID[habitID]; ok {
			h.Entries = append(h.Entries, e)
		}
	}
	if err := entryRows.Err(); err != nil {
		metrics.RecordRemoteCallLatency("listHabitsWithEntries", "error", time.Since(start))
		return nil, err
	}

	for _, h := range habits {
		totals := stats.ComputeTotals(h.Entries)
		h.CompletedCount = totals.Completed
		h.FailedCount = totals.Failed
	}

	s.logger.Debug("Listed habit documents", zap.Int("count", len(habits)))
	metrics.RecordRemoteCallLatency("listHabitsWithEntries", "success", time.Since(start))
	return habits, nil
}

func (s *PostgresService) GetEntries(ctx context.Context, habitID string) ([]model.Entry, error) {
	start := time.Now()

	rows, err := s.db.Query(ctx,
		`SELECT id, date, state FROM entries WHERE habit_id = $1 ORDER BY date ASC`,
		habitID,
	)
	if err != nil {
		s.logger.Error("Failed to get entries", zap.String("habit_id", habitID), zap.Error(err))
		metrics.RecordRemoteCallLatency("getEntries", "error", time.Since(start))
		return nil, err
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.State); err != nil {
			metrics.RecordRemoteCallLatency("getEntries", "error", time.Since(start))
			return nil, err
		}
		entries = append(entries, e)
	}

	metrics.RecordRemoteCallLatency("getEntries", "success", time.Since(start))
	return entries, rows.Err()
}

// UpdateEntry upserts the entry so a lazily synthesized client-side entry
// converges into a stored document on first toggle.
func (s *PostgresService) UpdateEntry(ctx context.Context, habitID, entryID string, date time.Time, state model.EntryState) error {
	start := time.Now()

	tag, err := s.db.Exec(ctx,
		`UPDATE entries SET state = $1 WHERE id = $2 AND habit_id = $3`,
		state, entryID, habitID,
	)
	if err != nil {
		s.logger.Error("Failed to update entry",
			zap.String("habit_id", habitID),
			zap.String("entry_id", entryID),
			zap.Error(err),
		)
		metrics.RecordRemoteCallLatency("updateEntry", "error", time.Since(start))
		return err
	}

	if tag.RowsAffected() == 0 {
		// Unknown id: the entry was synthesized locally. The calendar day
		// identifies the row to upsert.
		_, err = s.db.Exec(ctx,
			`INSERT INTO entries (id, habit_id, date, state) VALUES ($1, $2, $3, $4)
             ON CONFLICT (habit_id, date) DO UPDATE SET state = EXCLUDED.state`,
			entryID, habitID, dateutil.StartOfDay(date), state,
		)
		if err != nil {
			metrics.RecordRemoteCallLatency("updateEntry", "error", time.Since(start))
			return err
		}
	}

	metrics.RecordRemoteCallLatency("updateEntry", "success", time.Since(start))
	return nil
}

func (s *PostgresService) DeleteHabit(ctx context.Context, habitID string) error {
	start := time.Now()

	// Entries go with the habit via ON DELETE CASCADE.
	_, err := s.db.Exec(ctx, `DELETE FROM habits WHERE id = $1`, habitID)
	if err != nil {
		s.logger.Error("Failed to delete habit", zap.String("habit_id", habitID), zap.Error(err))
		metrics.RecordRemoteCallLatency("deleteHabit", "error", time.Since(start))
		return err
	}

	s.logger.Info("Habit document deleted", zap.String("habit_id", habitID))
	metrics.RecordRemoteCallLatency("deleteHabit", "success", time.Since(start))
	return nil
}

func (s *PostgresService) AddBadges(ctx context.Context, habitID string, newBadges []int) ([]int, error) {
	start := time.Now()

	var existing []int
	err := s.db.QueryRow(ctx, `SELECT badges FROM habits WHERE id = $1`, habitID).Scan(&existing)
	if err != nil {
		s.logger.Error("Failed to read badges", zap.String("habit_id", habitID), zap.Error(err))
		metrics.RecordRemoteCallLatency("addBadges", "error", time.Since(start))
		return nil, err
	}

	merged := stats.MergeBadges(existing, newBadges)
	_, err = s.db.Exec(ctx, `UPDATE habits SET badges = $1 WHERE id = $2`, merged, habitID)
	if err != nil {
		s.logger.Error("Failed to update badges", zap.String("habit_id", habitID), zap.Error(err))
		metrics.RecordRemoteCallLatency("addBadges", "error", time.Since(start))
		return nil, err
	}

	s.logger.Info("Badges updated",
		zap.String("habit_id", habitID),
		zap.Ints("badges", merged),
	)
	metrics.RecordRemoteCallLatency("addBadges", "success", time.Since(start))
	return merged, nil
}

func (s *PostgresService) SendContactMessage(ctx context.Context, msg ContactMessage) (string, error) {
	start := time.Now()

	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO contact_messages (id, name, email, message) VALUES ($1, $2, $3, $4)`,
		id, msg.Name, msg.Email, msg.Message,
	)
	if err != nil {
		s.logger.Error("Failed to store contact message", zap.Error(err))
		metrics.RecordRemoteCallLatency("sendContactMessage", "error", time.Since(start))
		return "", err
	}

	metrics.RecordRemoteCallLatency("sendContactMessage", "success", time.Since(start))
	return id, nil
}
