// Package aggregate provides the event-sourced aggregate root base.
//
// An aggregate's typed state is never the source of truth: it is always a
// fold over its event stream, optionally seeded from a snapshot. The Root
// base owns the bookkeeping every aggregate shares — identity, version,
// timestamps, and the uncommitted event buffer — while each aggregate
// supplies its own transition function.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// When applies one event to aggregate state. It must be a total,
// deterministic function of (current state, event): no randomness, no I/O,
// no wall-clock reads — timestamps come from the event itself so replay is
// reproducible regardless of when it runs.
type When func(evt event.Event) error

// Root is the embeddable aggregate root base.
type Root struct {
	id            string
	aggregateType string
	version       uint64
	createdAt     time.Time
	updatedAt     time.Time
	uncommitted   []event.Event
}

// NewRoot creates a zero-state root for a new or to-be-replayed aggregate.
func NewRoot(id, aggregateType string) Root {
	return Root{
		id:            strings.TrimSpace(id),
		aggregateType: strings.TrimSpace(aggregateType),
	}
}

// RestoreRoot rebuilds a root from snapshot bookkeeping. The caller is
// responsible for restoring the aggregate's typed state alongside it.
func RestoreRoot(id, aggregateType string, version uint64, createdAt, updatedAt time.Time) Root {
	return Root{
		id:            strings.TrimSpace(id),
		aggregateType: strings.TrimSpace(aggregateType),
		version:       version,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the aggregate identity, assigned at creation and immutable.
func (r *Root) ID() string { return r.id }

// AggregateType returns the aggregate kind.
func (r *Root) AggregateType() string { return r.aggregateType }

// Version returns the count of events applied to this aggregate.
func (r *Root) Version() uint64 { return r.version }

// CreatedAt returns the timestamp of the creation event.
func (r *Root) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the timestamp of the most recently applied event.
func (r *Root) UpdatedAt() time.Time { return r.updatedAt }

// UncommittedEvents returns a copy of the events buffered for the next save.
func (r *Root) UncommittedEvents() []event.Event {
	if len(r.uncommitted) == 0 {
		return nil
	}
	events := make([]event.Event, len(r.uncommitted))
	copy(events, r.uncommitted)
	return events
}

// ClearUncommittedEvents drops the buffer. Only the repository calls this,
// after a successful append.
func (r *Root) ClearUncommittedEvents() {
	r.uncommitted = nil
}

// Apply runs the aggregate's transition function for one event and performs
// the shared bookkeeping.
//
// Historical events only advance the version counter; new events are also
// buffered for the next save. An event whose version is not exactly
// current+1 is a replay-integrity failure: the stream is corrupt and the
// aggregate must not be served until repaired.
func (r *Root) Apply(evt event.Event, fromHistory bool, when When) error {
	if when == nil {
		return fmt.Errorf("aggregate transition function is required")
	}
	if evt.AggregateID != r.id {
		return errors.WithMetadata(errors.CodeReplayIntegrity,
			fmt.Sprintf("event for aggregate %s applied to aggregate %s", evt.AggregateID, r.id),
			map[string]string{"aggregate_id": r.id, "event_aggregate_id": evt.AggregateID})
	}
	if evt.AggregateVersion != r.version+1 {
		return errors.WithMetadata(errors.CodeReplayIntegrity,
			fmt.Sprintf("event version %d does not follow aggregate version %d", evt.AggregateVersion, r.version),
			map[string]string{
				"aggregate_id":     r.id,
				"aggregate_type":   r.aggregateType,
				"expected_version": fmt.Sprintf("%d", r.version+1),
				"event_version":    fmt.Sprintf("%d", evt.AggregateVersion),
			})
	}

	if err := when(evt); err != nil {
		return err
	}

	r.version = evt.AggregateVersion
	if r.createdAt.IsZero() {
		r.createdAt = evt.OccurredAt
	}
	r.updatedAt = evt.OccurredAt
	if !fromHistory {
		r.uncommitted = append(r.uncommitted, evt)
	}
	return nil
}

// Raise constructs the envelope for a newly decided payload and applies it.
// Business methods call Raise after their preconditions pass.
func (r *Root) Raise(payload event.Payload, occurredAt time.Time, when When) error {
	evt, err := event.New(r.id, r.aggregateType, r.version+1, payload, occurredAt)
	if err != nil {
		return err
	}
	return r.Apply(evt, false, when)
}
