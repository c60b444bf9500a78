// Package memory provides in-memory implementations of the CRM storage
// contracts. Safe for concurrent use; intended for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

// EventStore keeps per-aggregate event slices guarded by a mutex.
type EventStore struct {
	mu      sync.Mutex
	streams map[string][]event.Event
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{streams: make(map[string][]event.Event)}
}

// AppendEvents implements storage.EventStore.
func (s *EventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	for _, evt := range events {
		if err := evt.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	actual := uint64(len(stream))
	if actual != expectedVersion {
		return &storage.ConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}
	for i, evt := range events {
		want := expectedVersion + uint64(i) + 1
		if evt.AggregateVersion != want {
			return fmt.Errorf("event at index %d has version %d, want %d", i, evt.AggregateVersion, want)
		}
	}

	s.streams[aggregateID] = append(stream, events...)
	return nil
}

// LoadStream implements storage.EventStore.
func (s *EventStore) LoadStream(ctx context.Context, aggregateID string, fromVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	var out []event.Event
	for _, evt := range stream {
		if evt.AggregateVersion <= fromVersion {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LatestVersion implements storage.EventStore.
func (s *EventStore) LatestVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.streams[aggregateID])), nil
}

// ListAggregates implements storage.StreamLister.
func (s *EventStore) ListAggregates(ctx context.Context, aggregateType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, stream := range s.streams {
		if len(stream) == 0 {
			continue
		}
		if aggregateType != "" && stream[0].AggregateType != aggregateType {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SnapshotStore keeps the latest snapshot per aggregate.
type SnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]storage.Snapshot
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]storage.Snapshot)}
}

// SaveSnapshot implements storage.SnapshotStore.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.snapshots[snap.AggregateID]
	if ok && existing.Version >= snap.Version {
		return nil
	}
	state := make([]byte, len(snap.State))
	copy(state, snap.State)
	snap.State = state
	s.snapshots[snap.AggregateID] = snap
	return nil
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, aggregateID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return snap, nil
}

// DeleteSnapshots implements storage.SnapshotStore.
func (s *SnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, aggregateID)
	return nil
}

type watermarkKey struct {
	projection  string
	aggregateID string
}

// WatermarkStore keeps projection watermarks in a map.
type WatermarkStore struct {
	mu         sync.Mutex
	watermarks map[watermarkKey]uint64
}

// NewWatermarkStore creates an empty in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{watermarks: make(map[watermarkKey]uint64)}
}

// Watermark implements storage.WatermarkStore.
func (s *WatermarkStore) Watermark(ctx context.Context, projection, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermarks[watermarkKey{projection, aggregateID}], nil
}

// SetWatermark implements storage.WatermarkStore.
func (s *WatermarkStore) SetWatermark(ctx context.Context, projection, aggregateID string, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[watermarkKey{projection, aggregateID}] = version
	return nil
}

// ResetWatermarks implements storage.WatermarkStore.
func (s *WatermarkStore) ResetWatermarks(ctx context.Context, projection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.watermarks {
		if key.projection == projection {
			delete(s.watermarks, key)
		}
	}
	return nil
}

// ReadModels keeps all three read models in maps. One value serves the
// ticket queue, invoice summary, and client roster contracts.
type ReadModels struct {
	mu       sync.Mutex
	tickets  map[string]storage.TicketQueueRow
	invoices map[string]storage.InvoiceSummaryRow
	clients  map[string]storage.ClientRosterRow
}

// NewReadModels creates empty in-memory read models.
func NewReadModels() *ReadModels {
	return &ReadModels{
		tickets:  make(map[string]storage.TicketQueueRow),
		invoices: make(map[string]storage.InvoiceSummaryRow),
		clients:  make(map[string]storage.ClientRosterRow),
	}
}

// UpsertTicket implements storage.TicketQueueStore.
func (m *ReadModels) UpsertTicket(ctx context.Context, row storage.TicketQueueRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[row.TicketID] = row
	return nil
}

// DeleteTicket drops one ticket row, used when testing rebuilds.
func (m *ReadModels) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, ticketID)
	return nil
}

// GetTicket implements storage.TicketQueueStore.
func (m *ReadModels) GetTicket(ctx context.Context, ticketID string) (storage.TicketQueueRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.TicketQueueRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tickets[ticketID]
	if !ok {
		return storage.TicketQueueRow{}, storage.ErrNotFound
	}
	return row, nil
}

// ListTicketsByStatus implements storage.TicketQueueStore.
func (m *ReadModels) ListTicketsByStatus(ctx context.Context, status string, limit int) ([]storage.TicketQueueRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []storage.TicketQueueRow
	for _, row := range m.tickets {
		if row.Status == status {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TicketID < rows[j].TicketID })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// UpsertInvoice implements storage.InvoiceSummaryStore.
func (m *ReadModels) UpsertInvoice(ctx context.Context, row storage.InvoiceSummaryRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[row.InvoiceID] = row
	return nil
}

// GetInvoice implements storage.InvoiceSummaryStore.
func (m *ReadModels) GetInvoice(ctx context.Context, invoiceID string) (storage.InvoiceSummaryRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.InvoiceSummaryRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.invoices[invoiceID]
	if !ok {
		return storage.InvoiceSummaryRow{}, storage.ErrNotFound
	}
	return row, nil
}

// ListInvoicesByClient implements storage.InvoiceSummaryStore.
func (m *ReadModels) ListInvoicesByClient(ctx context.Context, clientID string, limit int) ([]storage.InvoiceSummaryRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []storage.InvoiceSummaryRow
	for _, row := range m.invoices {
		if row.ClientID == clientID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].InvoiceID < rows[j].InvoiceID })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// UpsertClient implements storage.ClientRosterStore.
func (m *ReadModels) UpsertClient(ctx context.Context, row storage.ClientRosterRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[row.ClientID] = row
	return nil
}

// GetClient implements storage.ClientRosterStore.
func (m *ReadModels) GetClient(ctx context.Context, clientID string) (storage.ClientRosterRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClientRosterRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.clients[clientID]
	if !ok {
		return storage.ClientRosterRow{}, storage.ErrNotFound
	}
	return row, nil
}

// ListActiveClients implements storage.ClientRosterStore.
func (m *ReadModels) ListActiveClients(ctx context.Context, limit int) ([]storage.ClientRosterRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []storage.ClientRosterRow
	for _, row := range m.clients {
		if row.Active {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ClientID < rows[j].ClientID })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
