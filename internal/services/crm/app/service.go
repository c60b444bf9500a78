// Package app wires the CRM runtime: stores, repositories, the rules
// engine, and the projection dispatcher behind one service facade.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/platform/id"
	"github.com/aicsynergy/platform/internal/services/crm/domain/aimodel"
	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/rules"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
	"github.com/aicsynergy/platform/internal/services/crm/projection"
	"github.com/aicsynergy/platform/internal/services/crm/repository"
	"github.com/aicsynergy/platform/internal/services/crm/snapshot"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

var tracer = otel.Tracer("crm")

// Stores groups the persistence dependencies the service needs. Any
// combination of backends works as long as the contracts hold; tests use
// the in-memory stores, the process runtime uses SQLite plus bbolt.
type Stores struct {
	Events           storage.EventStore
	Snapshots        storage.SnapshotStore
	Watermarks       storage.WatermarkStore
	TicketQueue      storage.TicketQueueStore
	InvoiceSummaries storage.InvoiceSummaryStore
	ClientRoster     storage.ClientRosterStore
}

// Service exposes the CRM commands and queries.
type Service struct {
	stores      Stores
	rules       *rules.Engine
	snapshots   *snapshot.Manager
	projections *projection.Manager

	tickets  *repository.Repository[*ticket.Ticket]
	invoices *repository.Repository[*invoice.Invoice]
	clients  *repository.Repository[*client.Client]
	models   *repository.Repository[*aimodel.Model]

	now   func() time.Time
	newID func() (string, error)
}

// Option configures a Service.
type Option func(*settings)

type settings struct {
	now              func() time.Time
	newID            func() (string, error)
	snapshotInterval uint64
}

// WithClock overrides the clock, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides event and aggregate ID generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *settings) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithSnapshotInterval overrides how many events elapse between snapshots.
func WithSnapshotInterval(interval uint64) Option {
	return func(s *settings) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// New wires a Service over the given stores.
func New(stores Stores, opts ...Option) (*Service, error) {
	if stores.Events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if stores.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if stores.Watermarks == nil {
		return nil, fmt.Errorf("watermark store is required")
	}

	cfg := settings{
		now:              time.Now,
		newID:            id.NewID,
		snapshotInterval: snapshot.DefaultInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	engine := rules.NewEngine()
	if err := rules.RegisterDefaults(engine); err != nil {
		return nil, fmt.Errorf("register rules: %w", err)
	}

	snapshots, err := snapshot.NewManager(stores.Snapshots,
		snapshot.WithInterval(cfg.snapshotInterval),
		snapshot.WithClock(cfg.now))
	if err != nil {
		return nil, err
	}

	projections, err := projection.NewManager(stores.Watermarks)
	if err != nil {
		return nil, err
	}
	if stores.TicketQueue != nil {
		if err := projection.RegisterTicketQueue(projections, stores.TicketQueue); err != nil {
			return nil, err
		}
	}
	if stores.InvoiceSummaries != nil {
		if err := projection.RegisterInvoiceSummaries(projections, stores.InvoiceSummaries); err != nil {
			return nil, err
		}
	}
	if stores.ClientRoster != nil {
		if err := projection.RegisterClientRoster(projections, stores.ClientRoster); err != nil {
			return nil, err
		}
	}

	repoOpts := []repository.Option{
		repository.WithSnapshots(snapshots),
		repository.WithPublisher(projections),
	}
	tickets, err := repository.New(stores.Events, repository.Hydrator[*ticket.Ticket]{
		New: ticket.New, Restore: ticket.Restore,
	}, repoOpts...)
	if err != nil {
		return nil, err
	}
	invoices, err := repository.New(stores.Events, repository.Hydrator[*invoice.Invoice]{
		New: invoice.New, Restore: invoice.Restore,
	}, repoOpts...)
	if err != nil {
		return nil, err
	}
	clients, err := repository.New(stores.Events, repository.Hydrator[*client.Client]{
		New: client.New, Restore: client.Restore,
	}, repoOpts...)
	if err != nil {
		return nil, err
	}
	models, err := repository.New(stores.Events, repository.Hydrator[*aimodel.Model]{
		New: aimodel.New, Restore: aimodel.Restore,
	}, repoOpts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		stores:      stores,
		rules:       engine,
		snapshots:   snapshots,
		projections: projections,
		tickets:     tickets,
		invoices:    invoices,
		clients:     clients,
		models:      models,
		now:         cfg.now,
		newID:       cfg.newID,
	}, nil
}

// Rules exposes the rules engine, e.g. for registering custom rules.
func (s *Service) Rules() *rules.Engine { return s.rules }

// DrainProjections blocks until all enqueued events have been dispatched.
// Called on shutdown so committed events reach the read models.
func (s *Service) DrainProjections() { s.projections.Wait() }

func (s *Service) span(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}
}

// failedRules converts critical rule failures into a validation error.
func failedRules(results []rules.Result) error {
	failure, ok := rules.FirstFailure(results)
	if !ok {
		return nil
	}
	return errors.WithMetadata(errors.CodeValidationFailed, failure.Err,
		map[string]string{"rules": strings.Join(rules.FailureNames(results), ",")})
}
