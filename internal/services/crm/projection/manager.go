// Package projection delivers committed events to read model projections.
//
// Delivery is asynchronous and per-aggregate ordered: events from one
// aggregate stream are applied in version order, streams from different
// aggregates never wait on each other, and the write path only enqueues.
// Each projection tracks a per-aggregate watermark so redelivered events
// are skipped instead of double-applied.
package projection

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

// Handler applies one event to a projection's read model.
type Handler func(ctx context.Context, evt event.Event) error

// ApplyError reports a projection handler failure after retries were
// exhausted. The watermark is not advanced, so a rebuild or redelivery can
// repair the read model.
type ApplyError struct {
	Projection  string
	AggregateID string
	EventID     string
	EventType   event.Type
	Err         error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("projection %s failed on event %s (%s) for aggregate %s: %v",
		e.Projection, e.EventID, e.EventType, e.AggregateID, e.Err)
}

// Unwrap returns the handler error.
func (e *ApplyError) Unwrap() error { return e.Err }

type subscription struct {
	projection string
	handler    Handler
}

type streamQueue struct {
	mu      sync.Mutex
	pending []event.Event
	running bool
}

// Manager routes committed events to subscribed projections.
type Manager struct {
	watermarks storage.WatermarkStore

	mu            sync.RWMutex
	subscriptions map[event.Type][]subscription

	streamsMu sync.Mutex
	streams   map[string]*streamQueue

	wg         sync.WaitGroup
	maxRetries uint
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRetries overrides how many times a failing handler is attempted
// per event.
func WithMaxRetries(tries uint) Option {
	return func(m *Manager) {
		if tries > 0 {
			m.maxRetries = tries
		}
	}
}

// NewManager creates a projection manager over the given watermark store.
func NewManager(watermarks storage.WatermarkStore, opts ...Option) (*Manager, error) {
	if watermarks == nil {
		return nil, fmt.Errorf("watermark store is required")
	}
	m := &Manager{
		watermarks:    watermarks,
		subscriptions: make(map[event.Type][]subscription),
		streams:       make(map[string]*streamQueue),
		maxRetries:    4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Subscribe registers a handler for one event type under a projection name.
// The name scopes the watermark, so all handlers of one projection share
// idempotence state.
func (m *Manager) Subscribe(projection string, eventType event.Type, handler Handler) error {
	projection = strings.TrimSpace(projection)
	if projection == "" {
		return fmt.Errorf("projection name is required")
	}
	if !eventType.IsValid() {
		return fmt.Errorf("event type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[eventType] = append(m.subscriptions[eventType], subscription{
		projection: projection,
		handler:    handler,
	})
	return nil
}

// Publish enqueues committed events for asynchronous delivery. It never
// blocks on handlers; the caller's save already succeeded and must not be
// held hostage by a slow projection.
func (m *Manager) Publish(_ context.Context, events []event.Event) {
	for _, evt := range events {
		m.enqueue(evt)
	}
}

func (m *Manager) enqueue(evt event.Event) {
	m.streamsMu.Lock()
	queue, ok := m.streams[evt.AggregateID]
	if !ok {
		queue = &streamQueue{}
		m.streams[evt.AggregateID] = queue
	}
	m.streamsMu.Unlock()

	m.wg.Add(1)
	queue.mu.Lock()
	queue.pending = append(queue.pending, evt)
	start := !queue.running
	if start {
		queue.running = true
	}
	queue.mu.Unlock()

	if start {
		go m.drain(queue)
	}
}

// drain applies one stream's queued events in arrival order. Detached from
// the save's context on purpose: a canceled request must not abandon
// already committed events.
func (m *Manager) drain(queue *streamQueue) {
	ctx := context.Background()
	for {
		queue.mu.Lock()
		if len(queue.pending) == 0 {
			queue.running = false
			queue.mu.Unlock()
			return
		}
		evt := queue.pending[0]
		queue.pending = queue.pending[1:]
		queue.mu.Unlock()

		m.Apply(ctx, evt)
		m.wg.Done()
	}
}

// Wait blocks until every event enqueued so far has been applied or given
// up on. Used in tests and during shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Apply delivers one event to every subscribed projection synchronously.
// Events at or below a projection's watermark are skipped. Handler failures
// are retried with capped exponential backoff; a handler that keeps failing
// is logged and its watermark left behind so the event can be redelivered.
//
// Deliveries for one aggregate must not run concurrently; the watermark
// check and set are not atomic. Publish guarantees this by funneling each
// stream through its own queue.
func (m *Manager) Apply(ctx context.Context, evt event.Event) {
	m.mu.RLock()
	subs := make([]subscription, len(m.subscriptions[evt.Type]))
	copy(subs, m.subscriptions[evt.Type])
	m.mu.RUnlock()

	for _, sub := range subs {
		if err := m.applyOne(ctx, sub, evt); err != nil {
			log.Printf("%v", err)
		}
	}
}

func (m *Manager) applyOne(ctx context.Context, sub subscription, evt event.Event) error {
	watermark, err := m.watermarks.Watermark(ctx, sub.projection, evt.AggregateID)
	if err != nil {
		return &ApplyError{
			Projection: sub.projection, AggregateID: evt.AggregateID,
			EventID: evt.ID, EventType: evt.Type,
			Err: fmt.Errorf("read watermark: %w", err),
		}
	}
	if evt.AggregateVersion <= watermark {
		return nil
	}

	operation := func() (struct{}, error) {
		return struct{}{}, sub.handler(ctx, evt)
	}
	if _, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newHandlerBackOff()),
		backoff.WithMaxTries(m.maxRetries)); err != nil {
		return &ApplyError{
			Projection: sub.projection, AggregateID: evt.AggregateID,
			EventID: evt.ID, EventType: evt.Type,
			Err: err,
		}
	}

	if err := m.watermarks.SetWatermark(ctx, sub.projection, evt.AggregateID, evt.AggregateVersion); err != nil {
		return &ApplyError{
			Projection: sub.projection, AggregateID: evt.AggregateID,
			EventID: evt.ID, EventType: evt.Type,
			Err: fmt.Errorf("set watermark: %w", err),
		}
	}
	return nil
}

// Reset drops all watermarks for a projection. The caller then replays the
// event streams through Publish to rebuild the read model from scratch.
func (m *Manager) Reset(ctx context.Context, projection string) error {
	projection = strings.TrimSpace(projection)
	if projection == "" {
		return fmt.Errorf("projection name is required")
	}
	return m.watermarks.ResetWatermarks(ctx, projection)
}

func newHandlerBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	return policy
}
