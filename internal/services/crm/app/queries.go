package app

import (
	"context"
	"fmt"

	"github.com/aicsynergy/platform/internal/services/crm/domain/aimodel"
	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
	"github.com/aicsynergy/platform/internal/services/crm/projection"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

// Ticket rehydrates one ticket from its event stream.
func (s *Service) Ticket(ctx context.Context, ticketID string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.load")
	defer func() { end(err) }()
	return s.tickets.Load(ctx, ticketID)
}

// Invoice rehydrates one invoice from its event stream.
func (s *Service) Invoice(ctx context.Context, invoiceID string) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.load")
	defer func() { end(err) }()
	return s.invoices.Load(ctx, invoiceID)
}

// Client rehydrates one client from its event stream.
func (s *Service) Client(ctx context.Context, clientID string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.load")
	defer func() { end(err) }()
	return s.clients.Load(ctx, clientID)
}

// Model rehydrates one AI model from its event stream.
func (s *Service) Model(ctx context.Context, modelID string) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.load")
	defer func() { end(err) }()
	return s.models.Load(ctx, modelID)
}

// TicketQueue lists tickets in the given status from the read model.
func (s *Service) TicketQueue(ctx context.Context, status string, limit int) ([]storage.TicketQueueRow, error) {
	if s.stores.TicketQueue == nil {
		return nil, fmt.Errorf("ticket queue read model is not configured")
	}
	return s.stores.TicketQueue.ListTicketsByStatus(ctx, status, limit)
}

// InvoicesForClient lists a client's invoice summaries from the read model.
func (s *Service) InvoicesForClient(ctx context.Context, clientID string, limit int) ([]storage.InvoiceSummaryRow, error) {
	if s.stores.InvoiceSummaries == nil {
		return nil, fmt.Errorf("invoice summary read model is not configured")
	}
	return s.stores.InvoiceSummaries.ListInvoicesByClient(ctx, clientID, limit)
}

// ActiveClients lists active clients from the roster read model.
func (s *Service) ActiveClients(ctx context.Context, limit int) ([]storage.ClientRosterRow, error) {
	if s.stores.ClientRoster == nil {
		return nil, fmt.Errorf("client roster read model is not configured")
	}
	return s.stores.ClientRoster.ListActiveClients(ctx, limit)
}

// projectionSources maps each projection to the aggregate type whose
// streams rebuild it.
var projectionSources = map[string]string{
	projection.TicketQueueName:      ticket.AggregateType,
	projection.InvoiceSummariesName: invoice.AggregateType,
	projection.ClientRosterName:     client.AggregateType,
}

// RebuildProjection drops a projection's watermarks and replays every
// relevant event stream from version 0. The event store must support stream
// listing. Replayed events go through the per-stream delivery queues, so a
// rebuild never interleaves with live deliveries for the same aggregate;
// the call returns once every queued event has been applied.
func (s *Service) RebuildProjection(ctx context.Context, name string) (err error) {
	ctx, end := s.span(ctx, "crm.projection.rebuild")
	defer func() { end(err) }()

	aggregateType, ok := projectionSources[name]
	if !ok {
		return fmt.Errorf("unknown projection %q", name)
	}
	lister, ok := s.stores.Events.(storage.StreamLister)
	if !ok {
		return fmt.Errorf("event store cannot enumerate streams")
	}

	if err := s.projections.Reset(ctx, name); err != nil {
		return err
	}

	aggregateIDs, err := lister.ListAggregates(ctx, aggregateType)
	if err != nil {
		return err
	}
	for _, aggregateID := range aggregateIDs {
		var fromVersion uint64
		for {
			page, err := s.stores.Events.LoadStream(ctx, aggregateID, fromVersion, replayPageSize)
			if err != nil {
				return fmt.Errorf("load stream: %w", err)
			}
			if len(page) > 0 {
				s.projections.Publish(ctx, page)
				fromVersion = page[len(page)-1].AggregateVersion
			}
			if len(page) < replayPageSize {
				break
			}
		}
	}
	s.projections.Wait()
	return nil
}

const replayPageSize = 200
