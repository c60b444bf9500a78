// Package storage defines the persistence contracts for the CRM event
// store, snapshots, projection watermarks, and read models.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ConflictError indicates an append raced another writer. ActualVersion is
// the version the store really holds so callers can reload and retry.
type ConflictError struct {
	AggregateID     string
	ExpectedVersion uint64
	ActualVersion   uint64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("aggregate %s is at version %d, expected %d",
		e.AggregateID, e.ActualVersion, e.ExpectedVersion)
}

// Is matches any ConflictError regardless of versions.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// EventStore persists aggregate event streams.
type EventStore interface {
	// AppendEvents atomically appends events to one aggregate stream.
	// The append succeeds only when the stream is exactly at
	// expectedVersion; otherwise nothing is persisted and the error is a
	// *ConflictError carrying the actual version.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) error
	// LoadStream returns up to limit events with version greater than
	// fromVersion, ascending. An unknown aggregate yields an empty slice.
	LoadStream(ctx context.Context, aggregateID string, fromVersion uint64, limit int) ([]event.Event, error)
	// LatestVersion returns the current stream version, 0 when the
	// aggregate has no events.
	LatestVersion(ctx context.Context, aggregateID string) (uint64, error)
}

// StreamLister is implemented by event stores that can enumerate the
// aggregates they hold. Projection rebuilds replay every listed stream from
// version 0.
type StreamLister interface {
	// ListAggregates returns the IDs of all aggregates of the given
	// type, or of every aggregate when the type is empty.
	ListAggregates(ctx context.Context, aggregateType string) ([]string, error)
}

// Snapshot is a cached aggregate state at a specific version. Deleting
// snapshots only affects load latency; the event stream stays the truth.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       uint64
	State         []byte
	TakenAt       time.Time
}

// SnapshotStore persists aggregate snapshots.
type SnapshotStore interface {
	// SaveSnapshot stores a snapshot, replacing any older one for the
	// same aggregate.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// LatestSnapshot returns the most recent snapshot for the aggregate,
	// ErrNotFound when none exists.
	LatestSnapshot(ctx context.Context, aggregateID string) (Snapshot, error)
	// DeleteSnapshots drops all snapshots for the aggregate.
	DeleteSnapshots(ctx context.Context, aggregateID string) error
}

// WatermarkStore tracks the highest event version each projection has
// applied per aggregate, making redelivery idempotent.
type WatermarkStore interface {
	// Watermark returns the applied version, 0 when the projection has
	// never seen the aggregate.
	Watermark(ctx context.Context, projection, aggregateID string) (uint64, error)
	// SetWatermark records the applied version.
	SetWatermark(ctx context.Context, projection, aggregateID string, version uint64) error
	// ResetWatermarks drops all watermarks for a projection, used before
	// a rebuild.
	ResetWatermarks(ctx context.Context, projection string) error
}

// TicketQueueRow is one ticket in the support queue read model.
type TicketQueueRow struct {
	TicketID      string
	Subject       string
	Status        string
	Priority      string
	AssigneeID    string
	ReopenedCount int
	UpdatedAt     time.Time
}

// TicketQueueStore persists the support queue read model.
type TicketQueueStore interface {
	UpsertTicket(ctx context.Context, row TicketQueueRow) error
	GetTicket(ctx context.Context, ticketID string) (TicketQueueRow, error)
	ListTicketsByStatus(ctx context.Context, status string, limit int) ([]TicketQueueRow, error)
}

// InvoiceSummaryRow is one invoice in the billing summary read model.
type InvoiceSummaryRow struct {
	InvoiceID        string
	InvoiceNumber    string
	ClientID         string
	Status           string
	Currency         string
	TotalCents       int64
	OutstandingCents int64
	DueDate          time.Time
	UpdatedAt        time.Time
}

// InvoiceSummaryStore persists the billing summary read model.
type InvoiceSummaryStore interface {
	UpsertInvoice(ctx context.Context, row InvoiceSummaryRow) error
	GetInvoice(ctx context.Context, invoiceID string) (InvoiceSummaryRow, error)
	ListInvoicesByClient(ctx context.Context, clientID string, limit int) ([]InvoiceSummaryRow, error)
}

// ClientRosterRow is one client in the roster read model.
type ClientRosterRow struct {
	ClientID         string
	Name             string
	ClientType       string
	Email            string
	AccountManagerID string
	LeadScore        int
	Active           bool
	UpdatedAt        time.Time
}

// ClientRosterStore persists the client roster read model.
type ClientRosterStore interface {
	UpsertClient(ctx context.Context, row ClientRosterRow) error
	GetClient(ctx context.Context, clientID string) (ClientRosterRow, error)
	ListActiveClients(ctx context.Context, limit int) ([]ClientRosterRow, error)
}
