package projection

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

// Projection names. They scope watermarks, so renaming one orphans its
// idempotence state and forces a rebuild.
const (
	TicketQueueName      = "ticket_queue"
	InvoiceSummariesName = "invoice_summaries"
	ClientRosterName     = "client_roster"
)

var (
	ticketCodec  = ticket.Codec()
	invoiceCodec = invoice.Codec()
	clientCodec  = client.Codec()
)

// RegisterTicketQueue subscribes the support queue read model to all ticket
// events.
func RegisterTicketQueue(m *Manager, store storage.TicketQueueStore) error {
	if store == nil {
		return fmt.Errorf("ticket queue store is required")
	}
	handler := func(ctx context.Context, evt event.Event) error {
		return applyTicketEvent(ctx, store, evt)
	}
	for _, eventType := range ticketCodec.Types() {
		if err := m.Subscribe(TicketQueueName, eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

func applyTicketEvent(ctx context.Context, store storage.TicketQueueStore, evt event.Event) error {
	payload, err := ticketCodec.Decode(evt)
	if err != nil {
		return err
	}

	row, err := store.GetTicket(ctx, evt.AggregateID)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}
	row.TicketID = evt.AggregateID
	row.UpdatedAt = evt.OccurredAt

	switch p := payload.(type) {
	case *ticket.Opened:
		// A replayed open resets the row so rebuilds fold from a clean base.
		row = storage.TicketQueueRow{
			TicketID:  evt.AggregateID,
			Subject:   p.Subject,
			Status:    string(ticket.StatusOpen),
			Priority:  string(p.Priority),
			UpdatedAt: evt.OccurredAt,
		}
	case *ticket.AgentAssigned:
		row.AssigneeID = p.AgentID
		row.Status = string(ticket.StatusInProgress)
	case *ticket.MessageAdded:
		if p.AuthorRole == ticket.AuthorCustomer && row.Status == string(ticket.StatusResolved) {
			row.Status = string(ticket.StatusOpen)
			row.ReopenedCount++
		}
	case *ticket.Resolved:
		row.Status = string(ticket.StatusResolved)
	case *ticket.Closed:
		row.Status = string(ticket.StatusClosed)
	case *ticket.Escalated:
		row.Priority = string(ticket.PriorityUrgent)
	default:
		return fmt.Errorf("ticket queue: unhandled payload %T", payload)
	}
	return store.UpsertTicket(ctx, row)
}

// RegisterInvoiceSummaries subscribes the billing summary read model to all
// invoice events.
func RegisterInvoiceSummaries(m *Manager, store storage.InvoiceSummaryStore) error {
	if store == nil {
		return fmt.Errorf("invoice summary store is required")
	}
	handler := func(ctx context.Context, evt event.Event) error {
		return applyInvoiceEvent(ctx, store, evt)
	}
	for _, eventType := range invoiceCodec.Types() {
		if err := m.Subscribe(InvoiceSummariesName, eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

func applyInvoiceEvent(ctx context.Context, store storage.InvoiceSummaryStore, evt event.Event) error {
	payload, err := invoiceCodec.Decode(evt)
	if err != nil {
		return err
	}

	row, err := store.GetInvoice(ctx, evt.AggregateID)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}
	row.InvoiceID = evt.AggregateID
	row.UpdatedAt = evt.OccurredAt

	switch p := payload.(type) {
	case *invoice.Created:
		// A replayed create resets the row so rebuilds fold from a clean base.
		row = storage.InvoiceSummaryRow{
			InvoiceID:     evt.AggregateID,
			InvoiceNumber: p.InvoiceNumber,
			ClientID:      p.ClientID,
			Currency:      p.Currency,
			Status:        string(invoice.StatusDraft),
			DueDate:       p.DueDate,
			UpdatedAt:     evt.OccurredAt,
		}
	case *invoice.LineItemAdded:
		total := p.Item.Total()
		row.TotalCents += total
		row.OutstandingCents += total
	case *invoice.LineItemRemoved:
		total := p.Item.Total()
		row.TotalCents -= total
		row.OutstandingCents -= total
	case *invoice.Sent:
		row.Status = string(invoice.StatusSent)
	case *invoice.PaymentRecorded:
		row.Status = string(invoice.StatusPaid)
		row.OutstandingCents -= p.AmountCents
		if row.OutstandingCents < 0 {
			row.OutstandingCents = 0
		}
	case *invoice.Cancelled:
		row.Status = string(invoice.StatusCancelled)
		row.OutstandingCents = 0
	default:
		return fmt.Errorf("invoice summaries: unhandled payload %T", payload)
	}
	return store.UpsertInvoice(ctx, row)
}

// RegisterClientRoster subscribes the client roster read model to all
// client events.
func RegisterClientRoster(m *Manager, store storage.ClientRosterStore) error {
	if store == nil {
		return fmt.Errorf("client roster store is required")
	}
	handler := func(ctx context.Context, evt event.Event) error {
		return applyClientEvent(ctx, store, evt)
	}
	for _, eventType := range clientCodec.Types() {
		if err := m.Subscribe(ClientRosterName, eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

func applyClientEvent(ctx context.Context, store storage.ClientRosterStore, evt event.Event) error {
	payload, err := clientCodec.Decode(evt)
	if err != nil {
		return err
	}

	row, err := store.GetClient(ctx, evt.AggregateID)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}
	row.ClientID = evt.AggregateID
	row.UpdatedAt = evt.OccurredAt

	switch p := payload.(type) {
	case *client.Created:
		// A replayed create resets the row so rebuilds fold from a clean base.
		row = storage.ClientRosterRow{
			ClientID:   evt.AggregateID,
			Name:       p.Name,
			ClientType: string(p.ClientType),
			Email:      p.Email,
			Active:     true,
			UpdatedAt:  evt.OccurredAt,
		}
	case *client.ProfileUpdated:
		// Profile details live on the aggregate; the roster only
		// tracks the update time.
	case *client.AccountManagerAssigned:
		row.AccountManagerID = p.ManagerID
	case *client.LeadScoreUpdated:
		row.LeadScore = p.Score
	case *client.TagAdded, *client.TagRemoved:
	case *client.Deactivated:
		row.Active = false
	case *client.Reactivated:
		row.Active = true
	default:
		return fmt.Errorf("client roster: unhandled payload %T", payload)
	}
	return store.UpsertClient(ctx, row)
}
