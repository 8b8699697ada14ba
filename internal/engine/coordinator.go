// Package engine implements the optimistic mutation coordinator: every
// remote mutation is wrapped in snapshot -> optimistic apply -> remote invoke
// -> commit or full rollback, and every settlement is followed by a refresh
// from the remote document store so optimistic guesses converge on server
// truth.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"habitsync/internal/model"
	"habitsync/internal/remote"
	"habitsync/internal/store"
	"habitsync/pkg/logger"
	"habitsync/pkg/metrics"
	"habitsync/pkg/util"
)

// MutationState is the lifecycle of one in-flight mutation.
type MutationState int

const (
	Idle MutationState = iota
	Optimistic
	Committed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Optimistic:
		return "optimistic"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Idempotency hands out one-shot locks; the badge chain uses it to settle at
// most once per toggle. Satisfied by util.Deduper.
type Idempotency interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
}

// EventPublisher fans settlement events out to interested consumers.
// Satisfied by mq.Publisher.
type EventPublisher interface {
	Publish(routingKey string, payload interface{}) error
}

type Coordinator struct {
	store  *store.Store
	remote remote.Service
	dedup  Idempotency
	events EventPublisher
	logger *zap.Logger

	// One in-flight refresh per cache key, so a new mutation on a key can
	// cancel the stale refresh still running for it. The sequence number
	// keeps a late-finishing refresh from unregistering its successor.
	inflightMu  sync.Mutex
	inflight    map[string]inflightRefresh
	inflightSeq uint64
}

type inflightRefresh struct {
	cancel context.CancelFunc
	seq    uint64
}

func NewCoordinator(s *store.Store, r remote.Service, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		remote:   r,
		logger:   log,
		inflight: make(map[string]inflightRefresh),
	}
}

// WithIdempotency attaches the dedup lock provider used by the badge chain.
func (c *Coordinator) WithIdempotency(d Idempotency) *Coordinator {
	c.dedup = d
	return c
}

// WithEvents attaches the settlement-event publisher.
func (c *Coordinator) WithEvents(p EventPublisher) *Coordinator {
	c.events = p
	return c
}

// mutation tracks one in-flight mutation through its lifecycle for logging
// and the settlement metric.
type mutation struct {
	kind    string
	state   MutationState
	started time.Time
}

func (c *Coordinator) begin(kind string) *mutation {
	return &mutation{kind: kind, state: Idle, started: time.Now()}
}

func (m *mutation) optimistic() {
	m.state = Optimistic
}

func (c *Coordinator) commit(m *mutation) {
	m.state = Committed
	metrics.RecordMutationLatency(m.kind, "committed", time.Since(m.started))
}

func (c *Coordinator) rollback(m *mutation, snap store.Snapshot) {
	c.store.Restore(snap)
	m.state = RolledBack
	metrics.IncrementRollback(m.kind)
	metrics.RecordMutationLatency(m.kind, "rolled_back", time.Since(m.started))
}

// cancelInflight aborts any outstanding refresh for the key so a stale read
// cannot overwrite a newer optimistic write.
func (c *Coordinator) cancelInflight(key string) {
	c.inflightMu.Lock()
	if cur, ok := c.inflight[key]; ok {
		cur.cancel()
		delete(c.inflight, key)
	}
	c.inflightMu.Unlock()
}

// Refresh fetches the authoritative collection and replaces the local store.
// Runs on every settlement, success or failure; this is the convergence
// mechanism for out-of-order network completions.
func (c *Coordinator) Refresh(ctx context.Context, key string) {
	refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c.inflightMu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.cancel()
	}
	c.inflightSeq++
	seq := c.inflightSeq
	c.inflight[key] = inflightRefresh{cancel: cancel, seq: seq}
	c.inflightMu.Unlock()

	defer func() {
		cancel()
		c.inflightMu.Lock()
		// Unregister only our own entry; a newer refresh may have replaced it.
		if cur, ok := c.inflight[key]; ok && cur.seq == seq {
			delete(c.inflight, key)
		}
		c.inflightMu.Unlock()
	}()

	habits, err := c.remote.ListHabitsWithEntries(refreshCtx)
	if err != nil {
		// Stale local state is acceptable; the next settlement refreshes again.
		logger.WithTrace(ctx, c.logger).Warn("Refresh from remote failed",
			zap.String("key", key),
			zap.Error(err),
		)
		metrics.IncrementStoreRefresh("failed")
		return
	}

	c.store.Replace(habits)
	metrics.IncrementStoreRefresh("success")
}

// remoteFailure wraps a remote error with its classification so callers can
// surface a meaningful notification.
func (c *Coordinator) remoteFailure(ctx context.Context, op string, err error) error {
	retryable, errType := util.ClassifyRemoteError(err)
	logger.WithTrace(ctx, c.logger).Error("Remote operation failed, rolling back",
		zap.String("operation", op),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	return fmt.Errorf("remote %s failed (%s): %w", op, errType, err)
}

func (c *Coordinator) publish(routingKey string, payload map[string]interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(routingKey, payload); err != nil {
		c.logger.Warn("Failed to publish settlement event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// Habits exposes the coordinated collection for read paths.
func (c *Coordinator) Habits() []*model.Habit {
	return c.store.Habits()
}

// Habit exposes one habit for read paths; nil when unknown.
func (c *Coordinator) Habit(id string) *model.Habit {
	return c.store.Habit(id)
}

// SortHabits reorders the local collection. Pure local operation, no remote
// leg, so no snapshot is needed.
func (c *Coordinator) SortHabits(mode store.SortMode) {
	c.store.SortHabits(mode)
}

// AddHabitMonth extends a habit's tracked window through the current month.
// Local-only; the remote store seeds its own months server-side.
func (c *Coordinator) AddHabitMonth(habitID string) bool {
	return c.store.AddHabitMonth(habitID)
}
