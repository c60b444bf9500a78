// Package repository loads and saves event-sourced aggregates. Loading is
// snapshot-seeded replay; saving is an optimistic-concurrency append of the
// aggregate's uncommitted events.
package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/snapshot"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

const defaultPageSize = 200

// Aggregate is the aggregate-side contract the repository works against.
// Every aggregate root in the domain packages satisfies it.
type Aggregate interface {
	ID() string
	AggregateType() string
	Version() uint64
	UncommittedEvents() []event.Event
	ClearUncommittedEvents()
	ApplyHistory(evt event.Event) error
	SnapshotState() ([]byte, error)
}

// Hydrator constructs aggregate instances for replay. New returns an empty
// aggregate ready to fold events; Restore rebuilds one from snapshot state.
type Hydrator[T Aggregate] struct {
	New     func(id string) T
	Restore func(version uint64, state []byte) (T, error)
}

// Publisher receives committed events after a successful save. The
// repository never fails a save on publisher errors; delivery is the
// projection manager's concern.
type Publisher interface {
	Publish(ctx context.Context, events []event.Event)
}

// Repository persists one aggregate type.
type Repository[T Aggregate] struct {
	events    storage.EventStore
	snapshots *snapshot.Manager
	hydrate   Hydrator[T]
	publisher Publisher
	pageSize  int
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	snapshots *snapshot.Manager
	publisher Publisher
	pageSize  int
}

// WithSnapshots enables snapshot-seeded loads and interval snapshotting on
// save.
func WithSnapshots(manager *snapshot.Manager) Option {
	return func(o *options) { o.snapshots = manager }
}

// WithPublisher forwards committed events to the given publisher.
func WithPublisher(publisher Publisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// WithPageSize overrides the replay page size.
func WithPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// New creates a repository for one aggregate type.
func New[T Aggregate](events storage.EventStore, hydrate Hydrator[T], opts ...Option) (*Repository[T], error) {
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if hydrate.New == nil {
		return nil, fmt.Errorf("hydrator new func is required")
	}

	o := options{pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		events:    events,
		snapshots: o.snapshots,
		hydrate:   hydrate,
		publisher: o.publisher,
		pageSize:  o.pageSize,
	}, nil
}

// Load rebuilds an aggregate from its latest snapshot plus the events
// appended since, or from a full replay when no snapshot exists. It returns
// storage.ErrNotFound when the aggregate has no events at all.
func (r *Repository[T]) Load(ctx context.Context, aggregateID string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return zero, fmt.Errorf("aggregate id is required")
	}

	agg, err := r.seed(ctx, aggregateID)
	if err != nil {
		return zero, err
	}

	replayed := 0
	for {
		page, err := r.events.LoadStream(ctx, aggregateID, agg.Version(), r.pageSize)
		if err != nil {
			return zero, fmt.Errorf("load stream: %w", err)
		}
		for _, evt := range page {
			if err := agg.ApplyHistory(evt); err != nil {
				return zero, err
			}
		}
		replayed += len(page)
		if len(page) < r.pageSize {
			break
		}
	}

	if agg.Version() == 0 {
		return zero, storage.ErrNotFound
	}
	if replayed == 0 {
		// Snapshot covered the whole stream; make sure it is not ahead
		// of a stream that was truncated or repaired underneath it.
		latest, err := r.events.LatestVersion(ctx, aggregateID)
		if err != nil {
			return zero, fmt.Errorf("latest version: %w", err)
		}
		if latest < agg.Version() {
			return zero, fmt.Errorf("snapshot version %d is ahead of stream version %d for aggregate %s",
				agg.Version(), latest, aggregateID)
		}
	}
	return agg, nil
}

func (r *Repository[T]) seed(ctx context.Context, aggregateID string) (T, error) {
	if r.snapshots != nil {
		snap, err := r.snapshots.LoadLatest(ctx, aggregateID)
		switch {
		case err == nil && r.hydrate.Restore != nil:
			agg, restoreErr := r.hydrate.Restore(snap.Version, snap.State)
			if restoreErr == nil {
				return agg, nil
			}
			// A corrupt snapshot is recoverable: fall back to full
			// replay and drop the bad record.
			_ = r.snapshots.Invalidate(ctx, aggregateID)
		case err != nil && !stderrors.Is(err, storage.ErrNotFound):
			var zero T
			return zero, fmt.Errorf("load snapshot: %w", err)
		}
	}
	return r.hydrate.New(aggregateID), nil
}

// Save appends the aggregate's uncommitted events in one atomic batch.
// The expected version is the aggregate version before those events; a
// concurrent writer surfaces as *storage.ConflictError with nothing
// persisted. After a successful append the buffer is cleared, a snapshot is
// taken when the interval has elapsed, and the events are handed to the
// publisher.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	expected := agg.Version() - uint64(len(events))

	if err := r.events.AppendEvents(ctx, agg.ID(), expected, events); err != nil {
		return err
	}
	agg.ClearUncommittedEvents()

	if r.snapshots != nil {
		if _, err := r.snapshots.MaybeTake(ctx, agg); err != nil {
			// Snapshots are a cache; a failed write must not fail
			// the save.
			logSnapshotFailure(agg.ID(), err)
		}
	}
	if r.publisher != nil {
		r.publisher.Publish(ctx, events)
	}
	return nil
}

// Update loads the aggregate, applies mutate, and saves, retrying the whole
// cycle on write conflicts. Each retry reloads so mutate always sees the
// state that won the race. Domain errors from mutate are never retried.
func (r *Repository[T]) Update(ctx context.Context, aggregateID string, mutate func(T) error) (T, error) {
	operation := func() (T, error) {
		var zero T
		agg, err := r.Load(ctx, aggregateID)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		if err := mutate(agg); err != nil {
			return zero, backoff.Permanent(err)
		}
		if err := r.Save(ctx, agg); err != nil {
			var conflict *storage.ConflictError
			if stderrors.As(err, &conflict) {
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		return agg, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(newConflictBackOff()),
		backoff.WithMaxTries(5))
}

func newConflictBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	return policy
}

func logSnapshotFailure(aggregateID string, err error) {
	log.Printf("snapshot for aggregate %s failed: %v", aggregateID, err)
}
