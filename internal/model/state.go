package model

// EntryState is the per-day tracking state of a habit entry.
type EntryState string

const (
	StatePending   EntryState = "pending"
	StateCompleted EntryState = "completed"
	StateFailed    EntryState = "failed"
)

func (s EntryState) IsValid() bool {
	switch s {
	case StatePending, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Advance cycles an entry state: pending -> completed -> failed -> pending.
// Unknown states are treated as pending. The function is pure and
// deterministic, which is what lets an optimistic client-side toggle match
// the server-confirmed state without a rollback in the common case.
func Advance(s EntryState) EntryState {
	switch s {
	case StatePending:
		return StateCompleted
	case StateCompleted:
		return StateFailed
	default:
		// failed, plus anything unrecognized, wraps back to pending.
		return StatePending
	}
}
