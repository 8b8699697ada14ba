// Package remote defines the contract of the remote document store the sync
// engine reconciles against, plus the concrete adapters (postgres, http).
// The engine only ever sees the Service interface; the store behind it is
// eventually consistent and treated as opaque CRUD.
package remote

import (
	"context"
	"time"

	"habitsync/internal/model"
)

// HabitInput carries the user-editable habit fields.
type HabitInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ContactMessage is the unrelated side-channel payload; it never touches the
// habit collection.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Service is the remote document store contract. Every call is a suspension
// point for the sync engine; all local store mutations happen outside it.
type Service interface {
	// CreateHabit stores a new habit document and seeds one month of pending
	// entries server-side. Returns the server-assigned habit id.
	CreateHabit(ctx context.Context, data HabitInput) (string, error)

	// UpdateHabit replaces a habit's title and description.
	UpdateHabit(ctx context.Context, habitID string, data HabitInput) error

	// ListHabitsWithEntries fetches the full collection, nested entries
	// included, entry dates normalized.
	ListHabitsWithEntries(ctx context.Context) ([]*model.Habit, error)

	// GetEntries returns a habit's entries ordered ascending by date.
	GetEntries(ctx context.Context, habitID string) ([]model.Entry, error)

	// UpdateEntry sets one entry's state. The entry's calendar day travels
	// with the call: locally synthesized entries have ids the server has
	// never seen, and the day is what identifies the row being upserted.
	UpdateEntry(ctx context.Context, habitID, entryID string, date time.Time, state model.EntryState) error

	// DeleteHabit removes the habit document, cascading entry deletion.
	DeleteHabit(ctx context.Context, habitID string) error

	// AddBadges appends milestone badges and returns the updated badge list.
	AddBadges(ctx context.Context, habitID string, newBadges []int) ([]int, error)

	// SendContactMessage forwards a contact-form message. Side channel, out
	// of the sync core.
	SendContactMessage(ctx context.Context, msg ContactMessage) (string, error)
}
