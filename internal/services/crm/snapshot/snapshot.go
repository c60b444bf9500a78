// Package snapshot caches aggregate state at a point in its event stream.
// A snapshot is never the source of truth: restoring it and replaying the
// remaining events must produce exactly the same state as a full replay, so
// snapshots can always be deleted and rebuilt.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

// DefaultInterval is the number of events between snapshots.
const DefaultInterval = 100

// Snapshot is the stored record, defined by the storage contracts.
type Snapshot = storage.Snapshot

// Source is the aggregate-side contract for taking snapshots.
type Source interface {
	ID() string
	AggregateType() string
	Version() uint64
	SnapshotState() ([]byte, error)
}

// Manager decides when to snapshot and persists the result.
type Manager struct {
	store    storage.SnapshotStore
	interval uint64
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval overrides the snapshot interval.
func WithInterval(interval uint64) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithClock overrides the clock, used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a snapshot manager over the provided store.
func NewManager(store storage.SnapshotStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	m := &Manager{
		store:    store,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Interval returns the configured snapshot interval.
func (m *Manager) Interval() uint64 { return m.interval }

// Take snapshots the aggregate unconditionally at its current version.
func (m *Manager) Take(ctx context.Context, src Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("snapshot source is required")
	}
	if strings.TrimSpace(src.ID()) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if src.Version() == 0 {
		return fmt.Errorf("aggregate has no events to snapshot")
	}

	state, err := src.SnapshotState()
	if err != nil {
		return fmt.Errorf("serialize snapshot state: %w", err)
	}
	return m.store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID:   src.ID(),
		AggregateType: src.AggregateType(),
		Version:       src.Version(),
		State:         state,
		TakenAt:       m.now().UTC(),
	})
}

// MaybeTake snapshots the aggregate when at least interval events have been
// appended since the last snapshot. It reports whether a snapshot was taken.
func (m *Manager) MaybeTake(ctx context.Context, src Source) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if src == nil {
		return false, fmt.Errorf("snapshot source is required")
	}

	var since uint64
	last, err := m.store.LatestSnapshot(ctx, src.ID())
	switch {
	case err == nil:
		if last.Version >= src.Version() {
			return false, nil
		}
		since = src.Version() - last.Version
	case errors.Is(err, storage.ErrNotFound):
		since = src.Version()
	default:
		return false, err
	}

	if since < m.interval {
		return false, nil
	}
	if err := m.Take(ctx, src); err != nil {
		return false, err
	}
	return true, nil
}

// LoadLatest returns the newest snapshot for the aggregate, or
// storage.ErrNotFound when none exists.
func (m *Manager) LoadLatest(ctx context.Context, aggregateID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	return m.store.LatestSnapshot(ctx, aggregateID)
}

// Invalidate drops all snapshots for the aggregate. The next load falls
// back to a full replay.
func (m *Manager) Invalidate(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.DeleteSnapshots(ctx, aggregateID)
}
