// Package sqlite provides SQLite-backed persistence for the CRM event
// store, snapshots, projection watermarks, and read models.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/aicsynergy/platform/internal/platform/storage/sqlitemigrate"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
	"github.com/aicsynergy/platform/internal/services/crm/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for CRM state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a CRM SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// AppendEvents implements storage.EventStore. The expected-version check
// and the inserts share one transaction, so a losing writer observes the
// winner's version and persists nothing.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if len(events) == 0 {
		return nil
	}
	for i, evt := range events {
		if err := evt.Validate(); err != nil {
			return fmt.Errorf("invalid event at index %d: %w", i, err)
		}
		if evt.AggregateID != aggregateID {
			return fmt.Errorf("event at index %d belongs to aggregate %s", i, evt.AggregateID)
		}
		if evt.AggregateVersion != expectedVersion+uint64(i)+1 {
			return fmt.Errorf("event at index %d has version %d, want %d", i, evt.AggregateVersion, expectedVersion+uint64(i)+1)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event append: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback event append: %v", cause, rollbackErr)
		}
		return cause
	}

	var actual uint64
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ?
`, aggregateID).Scan(&actual); err != nil {
		return rollbackWith(fmt.Errorf("read stream version: %w", err))
	}
	if actual != expectedVersion {
		return rollbackWith(&storage.ConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		})
	}

	for _, evt := range events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (event_id, aggregate_id, aggregate_type, aggregate_version, event_type, occurred_at, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, evt.ID, evt.AggregateID, evt.AggregateType, evt.AggregateVersion, string(evt.Type), toMillis(evt.OccurredAt), string(evt.PayloadJSON)); err != nil {
			if isUniqueViolation(err) {
				return rollbackWith(&storage.ConflictError{
					AggregateID:     aggregateID,
					ExpectedVersion: expectedVersion,
					ActualVersion:   actual,
				})
			}
			return rollbackWith(fmt.Errorf("insert event %s: %w", evt.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event append: %w", err)
	}
	return nil
}

// LoadStream implements storage.EventStore.
func (s *Store) LoadStream(ctx context.Context, aggregateID string, fromVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id, aggregate_id, aggregate_type, aggregate_version, event_type, occurred_at, payload_json
FROM events
WHERE aggregate_id = ? AND aggregate_version > ?
ORDER BY aggregate_version ASC
LIMIT ?
`, aggregateID, fromVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []event.Event
	for rows.Next() {
		var (
			evt        event.Event
			eventType  string
			occurredAt int64
			payload    string
		)
		if err := rows.Scan(&evt.ID, &evt.AggregateID, &evt.AggregateType, &evt.AggregateVersion, &eventType, &occurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.OccurredAt = fromMillis(occurredAt)
		evt.PayloadJSON = []byte(payload)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// LatestVersion implements storage.EventStore.
func (s *Store) LatestVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	var version uint64
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ?
`, aggregateID).Scan(&version); err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	return version, nil
}

// ListAggregates implements storage.StreamLister.
func (s *Store) ListAggregates(ctx context.Context, aggregateType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `SELECT DISTINCT aggregate_id FROM events ORDER BY aggregate_id`
	args := []any{}
	if strings.TrimSpace(aggregateType) != "" {
		query = `SELECT DISTINCT aggregate_id FROM events WHERE aggregate_type = ? ORDER BY aggregate_id`
		args = append(args, strings.TrimSpace(aggregateType))
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return ids, nil
}

// SaveSnapshot implements storage.SnapshotStore. Older snapshots never
// overwrite newer ones.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if snap.Version == 0 {
		return fmt.Errorf("snapshot version is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (aggregate_id, aggregate_type, aggregate_version, state_json, taken_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (aggregate_id) DO UPDATE SET
    aggregate_type = excluded.aggregate_type,
    aggregate_version = excluded.aggregate_version,
    state_json = excluded.state_json,
    taken_at = excluded.taken_at
WHERE excluded.aggregate_version > snapshots.aggregate_version
`, snap.AggregateID, snap.AggregateType, snap.Version, string(snap.State), toMillis(snap.TakenAt))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *Store) LatestSnapshot(ctx context.Context, aggregateID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return storage.Snapshot{}, fmt.Errorf("aggregate id is required")
	}

	var (
		snap    storage.Snapshot
		state   string
		takenAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT aggregate_id, aggregate_type, aggregate_version, state_json, taken_at
FROM snapshots WHERE aggregate_id = ?
`, aggregateID).Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &state, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap.State = []byte(state)
	snap.TakenAt = fromMillis(takenAt)
	return snap, nil
}

// DeleteSnapshots implements storage.SnapshotStore.
func (s *Store) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE aggregate_id = ?`, strings.TrimSpace(aggregateID)); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

// Watermark implements storage.WatermarkStore.
func (s *Store) Watermark(ctx context.Context, projection, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var version uint64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT applied_version FROM projection_watermarks WHERE projection = ? AND aggregate_id = ?
`, projection, aggregateID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	return version, nil
}

// SetWatermark implements storage.WatermarkStore.
func (s *Store) SetWatermark(ctx context.Context, projection, aggregateID string, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	projection = strings.TrimSpace(projection)
	aggregateID = strings.TrimSpace(aggregateID)
	if projection == "" {
		return fmt.Errorf("projection is required")
	}
	if aggregateID == "" {
		return fmt.Errorf("aggregate id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projection_watermarks (projection, aggregate_id, applied_version, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (projection, aggregate_id) DO UPDATE SET
    applied_version = excluded.applied_version,
    updated_at = excluded.updated_at
`, projection, aggregateID, version, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// ResetWatermarks implements storage.WatermarkStore.
func (s *Store) ResetWatermarks(ctx context.Context, projection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM projection_watermarks WHERE projection = ?`, strings.TrimSpace(projection)); err != nil {
		return fmt.Errorf("reset watermarks: %w", err)
	}
	return nil
}

// UpsertTicket implements storage.TicketQueueStore.
func (s *Store) UpsertTicket(ctx context.Context, row storage.TicketQueueRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(row.TicketID) == "" {
		return fmt.Errorf("ticket id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ticket_queue (ticket_id, subject, status, priority, assignee_id, reopened_count, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ticket_id) DO UPDATE SET
    subject = excluded.subject,
    status = excluded.status,
    priority = excluded.priority,
    assignee_id = excluded.assignee_id,
    reopened_count = excluded.reopened_count,
    updated_at = excluded.updated_at
`, row.TicketID, row.Subject, row.Status, row.Priority, row.AssigneeID, row.ReopenedCount, toMillis(row.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert ticket row: %w", err)
	}
	return nil
}

// GetTicket implements storage.TicketQueueStore.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (storage.TicketQueueRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.TicketQueueRow{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TicketQueueRow{}, fmt.Errorf("storage is not configured")
	}

	var (
		row       storage.TicketQueueRow
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT ticket_id, subject, status, priority, assignee_id, reopened_count, updated_at
FROM ticket_queue WHERE ticket_id = ?
`, strings.TrimSpace(ticketID)).Scan(&row.TicketID, &row.Subject, &row.Status, &row.Priority, &row.AssigneeID, &row.ReopenedCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TicketQueueRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.TicketQueueRow{}, fmt.Errorf("read ticket row: %w", err)
	}
	row.UpdatedAt = fromMillis(updatedAt)
	return row, nil
}

// ListTicketsByStatus implements storage.TicketQueueStore.
func (s *Store) ListTicketsByStatus(ctx context.Context, status string, limit int) ([]storage.TicketQueueRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT ticket_id, subject, status, priority, assignee_id, reopened_count, updated_at
FROM ticket_queue WHERE status = ?
ORDER BY ticket_id ASC
LIMIT ?
`, strings.TrimSpace(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticket rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.TicketQueueRow
	for rows.Next() {
		var (
			row       storage.TicketQueueRow
			updatedAt int64
		)
		if err := rows.Scan(&row.TicketID, &row.Subject, &row.Status, &row.Priority, &row.AssigneeID, &row.ReopenedCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		row.UpdatedAt = fromMillis(updatedAt)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows: %w", err)
	}
	return out, nil
}

// UpsertInvoice implements storage.InvoiceSummaryStore.
func (s *Store) UpsertInvoice(ctx context.Context, row storage.InvoiceSummaryRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(row.InvoiceID) == "" {
		return fmt.Errorf("invoice id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invoice_summaries (invoice_id, invoice_number, client_id, status, currency, total_cents, outstanding_cents, due_date, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (invoice_id) DO UPDATE SET
    invoice_number = excluded.invoice_number,
    client_id = excluded.client_id,
    status = excluded.status,
    currency = excluded.currency,
    total_cents = excluded.total_cents,
    outstanding_cents = excluded.outstanding_cents,
    due_date = excluded.due_date,
    updated_at = excluded.updated_at
`, row.InvoiceID, row.InvoiceNumber, row.ClientID, row.Status, row.Currency, row.TotalCents, row.OutstandingCents, toMillis(row.DueDate), toMillis(row.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert invoice row: %w", err)
	}
	return nil
}

// GetInvoice implements storage.InvoiceSummaryStore.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (storage.InvoiceSummaryRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.InvoiceSummaryRow{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.InvoiceSummaryRow{}, fmt.Errorf("storage is not configured")
	}

	var (
		row       storage.InvoiceSummaryRow
		dueDate   int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT invoice_id, invoice_number, client_id, status, currency, total_cents, outstanding_cents, due_date, updated_at
FROM invoice_summaries WHERE invoice_id = ?
`, strings.TrimSpace(invoiceID)).Scan(&row.InvoiceID, &row.InvoiceNumber, &row.ClientID, &row.Status, &row.Currency, &row.TotalCents, &row.OutstandingCents, &dueDate, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.InvoiceSummaryRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.InvoiceSummaryRow{}, fmt.Errorf("read invoice row: %w", err)
	}
	row.DueDate = fromMillis(dueDate)
	row.UpdatedAt = fromMillis(updatedAt)
	return row, nil
}

// ListInvoicesByClient implements storage.InvoiceSummaryStore.
func (s *Store) ListInvoicesByClient(ctx context.Context, clientID string, limit int) ([]storage.InvoiceSummaryRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT invoice_id, invoice_number, client_id, status, currency, total_cents, outstanding_cents, due_date, updated_at
FROM invoice_summaries WHERE client_id = ?
ORDER BY invoice_id ASC
LIMIT ?
`, strings.TrimSpace(clientID), limit)
	if err != nil {
		return nil, fmt.Errorf("query invoice rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.InvoiceSummaryRow
	for rows.Next() {
		var (
			row       storage.InvoiceSummaryRow
			dueDate   int64
			updatedAt int64
		)
		if err := rows.Scan(&row.InvoiceID, &row.InvoiceNumber, &row.ClientID, &row.Status, &row.Currency, &row.TotalCents, &row.OutstandingCents, &dueDate, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		row.DueDate = fromMillis(dueDate)
		row.UpdatedAt = fromMillis(updatedAt)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return out, nil
}

// UpsertClient implements storage.ClientRosterStore.
func (s *Store) UpsertClient(ctx context.Context, row storage.ClientRosterRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(row.ClientID) == "" {
		return fmt.Errorf("client id is required")
	}

	active := 0
	if row.Active {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO client_roster (client_id, name, client_type, email, account_manager_id, lead_score, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (client_id) DO UPDATE SET
    name = excluded.name,
    client_type = excluded.client_type,
    email = excluded.email,
    account_manager_id = excluded.account_manager_id,
    lead_score = excluded.lead_score,
    active = excluded.active,
    updated_at = excluded.updated_at
`, row.ClientID, row.Name, row.ClientType, row.Email, row.AccountManagerID, row.LeadScore, active, toMillis(row.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert client row: %w", err)
	}
	return nil
}

// GetClient implements storage.ClientRosterStore.
func (s *Store) GetClient(ctx context.Context, clientID string) (storage.ClientRosterRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClientRosterRow{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ClientRosterRow{}, fmt.Errorf("storage is not configured")
	}

	var (
		row       storage.ClientRosterRow
		active    int
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT client_id, name, client_type, email, account_manager_id, lead_score, active, updated_at
FROM client_roster WHERE client_id = ?
`, strings.TrimSpace(clientID)).Scan(&row.ClientID, &row.Name, &row.ClientType, &row.Email, &row.AccountManagerID, &row.LeadScore, &active, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ClientRosterRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ClientRosterRow{}, fmt.Errorf("read client row: %w", err)
	}
	row.Active = active == 1
	row.UpdatedAt = fromMillis(updatedAt)
	return row, nil
}

// ListActiveClients implements storage.ClientRosterStore.
func (s *Store) ListActiveClients(ctx context.Context, limit int) ([]storage.ClientRosterRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT client_id, name, client_type, email, account_manager_id, lead_score, active, updated_at
FROM client_roster WHERE active = 1
ORDER BY client_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query client rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.ClientRosterRow
	for rows.Next() {
		var (
			row       storage.ClientRosterRow
			active    int
			updatedAt int64
		)
		if err := rows.Scan(&row.ClientID, &row.Name, &row.ClientType, &row.Email, &row.AccountManagerID, &row.LeadScore, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		row.Active = active == 1
		row.UpdatedAt = fromMillis(updatedAt)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client rows: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "constraint failed")
}
