package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"habitsync/internal/dateutil"
	"habitsync/internal/model"
	"habitsync/internal/remote"
	"habitsync/internal/store"
)

// fakeRemote scripts per-operation outcomes and counts calls. list defaults
// to an error so refreshes fail gracefully and assertions can run against the
// optimistic local state.
type fakeRemote struct {
	mu sync.Mutex

	createErr      error
	updateHabitErr error
	updateEntryErr error
	deleteErr      error
	addBadgesErr   error

	listHabits []*model.Habit
	listErr    error
	listGate   chan struct{}

	createCalls      int
	updateHabitCalls int
	updateEntryCalls int
	deleteCalls      int
	addBadgesCalls   int
	lastAddBadges    []int
	lastEntryDate    time.Time
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{listErr: errors.New("list unavailable")}
}

func (f *fakeRemote) CreateHabit(ctx context.Context, data remote.HabitInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "srv-1", nil
}

func (f *fakeRemote) UpdateHabit(ctx context.Context, habitID string, data remote.HabitInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateHabitCalls++
	return f.updateHabitErr
}

func (f *fakeRemote) ListHabitsWithEntries(ctx context.Context) ([]*model.Habit, error) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listHabits, nil
}

func (f *fakeRemote) GetEntries(ctx context.Context, habitID string) ([]model.Entry, error) {
	return nil, nil
}

func (f *fakeRemote) UpdateEntry(ctx context.Context, habitID, entryID string, date time.Time, state model.EntryState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateEntryCalls++
	f.lastEntryDate = date
	return f.updateEntryErr
}

func (f *fakeRemote) DeleteHabit(ctx context.Context, habitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeRemote) AddBadges(ctx context.Context, habitID string, newBadges []int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addBadgesCalls++
	f.lastAddBadges = newBadges
	if f.addBadgesErr != nil {
		return nil, f.addBadgesErr
	}
	return newBadges, nil
}

func (f *fakeRemote) SendContactMessage(ctx context.Context, msg remote.ContactMessage) (string, error) {
	return "msg-1", nil
}

// fakeDedup is an in-memory one-shot lock.
type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (f *fakeDedup) AcquireOnce(ctx context.Context, scope, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := scope + ":" + key
	if f.seen[full] {
		return false
	}
	f.seen[full] = true
	return true
}

// fakePublisher records settlement events in order.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(routingKey string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, routingKey)
	return nil
}

func (f *fakePublisher) routingKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func newTestCoordinator(t *testing.T, now time.Time) (*Coordinator, *store.Store, *fakeRemote, *fakePublisher) {
	t.Helper()
	s := store.New(zap.NewNop()).WithClock(func() time.Time { return now })
	r := newFakeRemote()
	pub := &fakePublisher{}
	c := NewCoordinator(s, r, zap.NewNop()).
		WithIdempotency(newFakeDedup()).
		WithEvents(pub)
	return c, s, r, pub
}

func testNow() time.Time {
	return time.Date(2025, time.June, 10, 12, 0, 0, 0, time.Local)
}

// entryForDay finds the habit's entry tracking the given date.
func entryForDay(t *testing.T, h *model.Habit, date time.Time) model.Entry {
	t.Helper()
	for _, e := range h.Entries {
		if dateutil.IsSameDay(e.Date, date) {
			return e
		}
	}
	t.Fatalf("no entry for %s", date.Format("2006-01-02"))
	return model.Entry{}
}

func TestCreateHabitCommitted(t *testing.T) {
	c, s, r, pub := newTestCoordinator(t, testNow())

	h, err := c.CreateHabit(context.Background(), "Read", "ten pages")
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, r.createCalls)
	assert.False(t, h.IsCreating, "creating flag clears on commit")
	assert.Contains(t, pub.routingKeys(), "habit.created")
}

func TestCreateHabitReturnsHabitWhenRefreshOmitsIt(t *testing.T) {
	c, _, r, _ := newTestCoordinator(t, testNow())
	// The remote commits the create but its eventually-consistent list does
	// not include the new habit yet.
	r.mu.Lock()
	r.listErr = nil
	r.listHabits = nil
	r.mu.Unlock()

	h, err := c.CreateHabit(context.Background(), "Read", "")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Read", h.Title)
}

func TestCreateHabitRollsBackOnRemoteFailure(t *testing.T) {
	c, s, r, pub := newTestCoordinator(t, testNow())
	r.createErr = errors.New("connection refused")

	h, err := c.CreateHabit(context.Background(), "Read", "")
	require.Error(t, err)
	assert.Nil(t, h)

	assert.Equal(t, 0, s.Len(), "optimistic insert fully undone")
	assert.Empty(t, pub.routingKeys())
}

func TestCreateHabitValidationSkipsRemote(t *testing.T) {
	c, s, r, _ := newTestCoordinator(t, testNow())

	_, err := c.CreateHabit(context.Background(), "  ", "")
	require.Error(t, err)

	var vErr *store.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, r.createCalls)
	assert.Equal(t, 0, s.Len())
}

func TestToggleEntryCommitted(t *testing.T) {
	c, s, r, pub := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	got, err := c.ToggleEntry(context.Background(), seed.ID, testNow())
	require.NoError(t, err)
	require.NotNil(t, got)

	e := entryForDay(t, got, testNow())
	assert.Equal(t, model.StateCompleted, e.State)
	assert.Equal(t, 1, got.CompletedCount)
	assert.Equal(t, 1, r.updateEntryCalls)
	assert.Contains(t, pub.routingKeys(), "entry.toggled")
}

func TestToggleEntryCycle(t *testing.T) {
	c, s, _, _ := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	states := []model.EntryState{model.StateCompleted, model.StateFailed, model.StatePending}
	for _, want := range states {
		got, err := c.ToggleEntry(context.Background(), seed.ID, testNow())
		require.NoError(t, err)
		assert.Equal(t, want, entryForDay(t, got, testNow()).State)
	}
}

func TestToggleEntrySendsToggledDayToRemote(t *testing.T) {
	now := testNow()
	c, s, r, _ := newTestCoordinator(t, now)
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	// A date outside the seeded month gets a locally synthesized entry whose
	// id the server has never seen; the toggled day itself must travel with
	// the remote call.
	yesterday := time.Date(2025, time.May, 20, 0, 0, 0, 0, time.Local)
	_, err = c.ToggleEntry(context.Background(), seed.ID, yesterday)
	require.NoError(t, err)

	r.mu.Lock()
	got := r.lastEntryDate
	r.mu.Unlock()
	assert.True(t, dateutil.IsSameDay(yesterday, got), "remote saw %s", got.Format("2006-01-02"))
}

func TestToggleEntryRollsBackOnRemoteFailure(t *testing.T) {
	c, s, r, pub := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)
	r.updateEntryErr = errors.New("i/o timeout")

	got, err := c.ToggleEntry(context.Background(), seed.ID, testNow())
	require.Error(t, err)
	assert.Nil(t, got)

	h := s.Habit(seed.ID)
	assert.Equal(t, model.StatePending, entryForDay(t, h, testNow()).State)
	assert.Equal(t, 0, h.CompletedCount, "totals restored with the snapshot")
	assert.Empty(t, pub.routingKeys())
}

func TestToggleEntryUnknownHabitIsNoop(t *testing.T) {
	c, _, r, _ := newTestCoordinator(t, testNow())

	got, err := c.ToggleEntry(context.Background(), "no-such-id", testNow())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, r.updateEntryCalls)
}

// completeDays marks the habit's entries for the given dates completed,
// straight through the store so no remote legs run.
func completeDays(t *testing.T, s *store.Store, habitID string, days ...time.Time) {
	t.Helper()
	h := s.Habit(habitID)
	require.NotNil(t, h)
	for _, d := range days {
		e := entryForDay(t, h, d)
		_, ok := s.UpdateEntry(habitID, e.ID, model.StateCompleted)
		require.True(t, ok)
	}
}

func TestToggleEntryAwardsMilestoneBadge(t *testing.T) {
	now := testNow()
	c, s, r, pub := newTestCoordinator(t, now)
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	// Six completed days behind today; toggling today makes a 7-day streak.
	for i := 1; i <= 6; i++ {
		completeDays(t, s, seed.ID, now.AddDate(0, 0, -i))
	}

	got, err := c.ToggleEntry(context.Background(), seed.ID, now)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, []int{7}, got.Badges)
	assert.Equal(t, 1, r.addBadgesCalls)
	assert.Equal(t, []int{7}, r.lastAddBadges)
	assert.Contains(t, pub.routingKeys(), "badge.awarded")
}

func TestToggleEntryNoBadgeBelowMilestone(t *testing.T) {
	now := testNow()
	c, s, r, _ := newTestCoordinator(t, now)
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)
	completeDays(t, s, seed.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, -2))

	got, err := c.ToggleEntry(context.Background(), seed.ID, now)
	require.NoError(t, err)
	assert.Empty(t, got.Badges)
	assert.Equal(t, 0, r.addBadgesCalls)
}

func TestBadgeChainAttemptsAtMostOncePerSettlement(t *testing.T) {
	now := testNow()
	c, s, r, _ := newTestCoordinator(t, now)
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		completeDays(t, s, seed.ID, now.AddDate(0, 0, -i))
	}
	r.addBadgesErr = errors.New("connection reset")

	// The toggle commits; the chained badge mutation fails and rolls back
	// only its own optimistic apply.
	_, err = c.ToggleEntry(context.Background(), seed.ID, now)
	require.Error(t, err)
	require.Equal(t, 1, r.addBadgesCalls)

	h := s.Habit(seed.ID)
	assert.Equal(t, model.StateCompleted, entryForDay(t, h, now).State, "parent toggle stays committed")
	assert.Empty(t, h.Badges, "badge optimistic apply undone")

	// A duplicate settlement of the same toggle is blocked by the dedup lock
	// even after the remote recovers.
	r.addBadgesErr = nil
	entry := entryForDay(t, h, now)
	require.NoError(t, c.maybeAwardBadges(context.Background(), seed.ID, entry.ID, model.StateCompleted))
	assert.Equal(t, 1, r.addBadgesCalls)
	assert.Empty(t, s.Habit(seed.ID).Badges)
}

func TestDeleteHabitCommitted(t *testing.T) {
	c, s, r, pub := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	require.NoError(t, c.DeleteHabit(context.Background(), seed.ID))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, r.deleteCalls)
	assert.Contains(t, pub.routingKeys(), "habit.deleted")
}

func TestDeleteHabitRollsBackOnRemoteFailure(t *testing.T) {
	c, s, r, _ := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)
	r.deleteErr = errors.New("remote service 5xx: 503")

	require.Error(t, c.DeleteHabit(context.Background(), seed.ID))

	h := s.Habit(seed.ID)
	require.NotNil(t, h, "habit restored")
	assert.False(t, h.IsDeleting, "deleting flag restored with the snapshot")
	assert.Equal(t, "Read", h.Title)
}

func TestDeleteHabitUnknownSkipsRemote(t *testing.T) {
	c, _, r, _ := newTestCoordinator(t, testNow())

	require.NoError(t, c.DeleteHabit(context.Background(), "no-such-id"))
	assert.Equal(t, 0, r.deleteCalls)
}

func TestEditHabitRollsBackOnRemoteFailure(t *testing.T) {
	c, s, r, _ := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "old")
	require.NoError(t, err)
	r.updateHabitErr = errors.New("context deadline exceeded")

	require.Error(t, c.EditHabit(context.Background(), seed.ID, "Read more", "new"))

	h := s.Habit(seed.ID)
	assert.Equal(t, "Read", h.Title)
	assert.Equal(t, "old", h.Description)
}

func TestRefreshReplacesStoreOnSuccess(t *testing.T) {
	now := testNow()
	c, s, r, _ := newTestCoordinator(t, now)
	_, err := s.CreateHabit("Stale", "")
	require.NoError(t, err)

	r.mu.Lock()
	r.listErr = nil
	r.listHabits = []*model.Habit{{
		ID:    "srv-1",
		Title: "Fresh",
		Entries: []model.Entry{
			{ID: "e1", Date: dateutil.StartOfDay(now), State: model.StateCompleted},
		},
		Badges: []int{},
	}}
	r.mu.Unlock()

	c.Refresh(context.Background(), "collection")

	habits := s.Habits()
	require.Len(t, habits, 1)
	assert.Equal(t, "srv-1", habits[0].ID)
	assert.Equal(t, 1, habits[0].CompletedCount, "totals recomputed on replace")
}

func TestRefreshFailureKeepsLocalState(t *testing.T) {
	c, s, _, _ := newTestCoordinator(t, testNow())
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	c.Refresh(context.Background(), "collection")

	h := s.Habit(seed.ID)
	require.NotNil(t, h)
	assert.Equal(t, "Read", h.Title)
}

func TestLateRefreshKeepsNewerRegistration(t *testing.T) {
	c, _, r, _ := newTestCoordinator(t, testNow())
	gate := make(chan struct{})
	r.mu.Lock()
	r.listGate = gate
	r.mu.Unlock()

	first := make(chan struct{})
	go func() {
		c.Refresh(context.Background(), "collection")
		close(first)
	}()
	require.Eventually(t, func() bool {
		c.inflightMu.Lock()
		defer c.inflightMu.Unlock()
		_, ok := c.inflight["collection"]
		return ok
	}, time.Second, 5*time.Millisecond)

	// The second refresh cancels the first; the first's late cleanup must
	// not unregister the second's cancel func.
	second := make(chan struct{})
	go func() {
		c.Refresh(context.Background(), "collection")
		close(second)
	}()
	<-first

	c.inflightMu.Lock()
	_, registered := c.inflight["collection"]
	c.inflightMu.Unlock()
	assert.True(t, registered, "newer refresh must stay cancellable")

	close(gate)
	<-second

	c.inflightMu.Lock()
	_, registered = c.inflight["collection"]
	c.inflightMu.Unlock()
	assert.False(t, registered)
}

func TestConcurrentTogglesOnDifferentEntries(t *testing.T) {
	now := testNow()
	c, s, _, _ := newTestCoordinator(t, now)
	seed, err := s.CreateHabit("Read", "")
	require.NoError(t, err)

	days := []time.Time{now, now.AddDate(0, 0, -1), now.AddDate(0, 0, -2)}
	var wg sync.WaitGroup
	for _, d := range days {
		wg.Add(1)
		go func(day time.Time) {
			defer wg.Done()
			_, err := c.ToggleEntry(context.Background(), seed.ID, day)
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	h := s.Habit(seed.ID)
	for _, d := range days {
		assert.Equal(t, model.StateCompleted, entryForDay(t, h, d).State)
	}
	assert.Equal(t, len(days), h.CompletedCount)
}

func TestSendContactMessagePassthrough(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, testNow())

	id, err := c.SendContactMessage(context.Background(), remote.ContactMessage{
		Name:    "Ada",
		Email:   "ada@example.com",
		Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
}
