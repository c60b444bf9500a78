package app

import (
	"context"

	"github.com/aicsynergy/platform/internal/services/crm/domain/aimodel"
	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/rules"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
)

// OpenTicket creates a new support ticket and returns it.
func (s *Service) OpenTicket(ctx context.Context, input ticket.OpenInput) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.open")
	defer func() { end(err) }()

	ticketID, err := s.newID()
	if err != nil {
		return nil, err
	}
	tk, err = ticket.Open(ticketID, input, s.now())
	if err != nil {
		return nil, err
	}
	if err = s.tickets.Save(ctx, tk); err != nil {
		return nil, err
	}
	return tk, nil
}

// AssignTicketAgent puts the ticket in progress under the given agent.
func (s *Service) AssignTicketAgent(ctx context.Context, ticketID, agentID string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.assign_agent")
	defer func() { end(err) }()

	return s.tickets.Update(ctx, ticketID, func(current *ticket.Ticket) error {
		return current.AssignAgent(agentID, s.now())
	})
}

// AddTicketMessage appends a message to the ticket conversation. A customer
// message on a resolved ticket reopens it.
func (s *Service) AddTicketMessage(ctx context.Context, ticketID, authorID, authorRole, body string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.add_message")
	defer func() { end(err) }()

	return s.tickets.Update(ctx, ticketID, func(current *ticket.Ticket) error {
		return current.AddMessage(authorID, authorRole, body, s.now())
	})
}

// ResolveTicket marks the ticket resolved.
func (s *Service) ResolveTicket(ctx context.Context, ticketID, resolvedBy, resolution string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.resolve")
	defer func() { end(err) }()

	return s.tickets.Update(ctx, ticketID, func(current *ticket.Ticket) error {
		return current.Resolve(resolvedBy, resolution, s.now())
	})
}

// CloseTicket closes the ticket permanently.
func (s *Service) CloseTicket(ctx context.Context, ticketID, closedBy string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.close")
	defer func() { end(err) }()

	return s.tickets.Update(ctx, ticketID, func(current *ticket.Ticket) error {
		return current.Close(closedBy, s.now())
	})
}

// EscalateTicket raises the ticket priority to urgent.
func (s *Service) EscalateTicket(ctx context.Context, ticketID, escalatedBy, reason string) (tk *ticket.Ticket, err error) {
	ctx, end := s.span(ctx, "crm.ticket.escalate")
	defer func() { end(err) }()

	return s.tickets.Update(ctx, ticketID, func(current *ticket.Ticket) error {
		return current.Escalate(escalatedBy, reason, s.now())
	})
}

// ReviewTicket runs the ticket rules and returns their results, e.g. the
// first-response SLA warning.
func (s *Service) ReviewTicket(ctx context.Context, ticketID string) ([]rules.Result, error) {
	tk, err := s.tickets.Load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.rules.Validate(ctx, ticket.AggregateType, rules.TicketReview{
		Ticket: tk,
		Now:    s.now(),
	}), nil
}

// CreateInvoice opens a draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, input invoice.CreateInput) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.create")
	defer func() { end(err) }()

	invoiceID, err := s.newID()
	if err != nil {
		return nil, err
	}
	inv, err = invoice.Create(invoiceID, input, s.now())
	if err != nil {
		return nil, err
	}
	if err = s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// AddInvoiceLineItem adds a line to a draft invoice.
func (s *Service) AddInvoiceLineItem(ctx context.Context, invoiceID string, item invoice.LineItem) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.add_line_item")
	defer func() { end(err) }()

	return s.invoices.Update(ctx, invoiceID, func(current *invoice.Invoice) error {
		return current.AddLineItem(item, s.now())
	})
}

// RemoveInvoiceLineItem removes the line at index from a draft invoice.
func (s *Service) RemoveInvoiceLineItem(ctx context.Context, invoiceID string, index int) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.remove_line_item")
	defer func() { end(err) }()

	return s.invoices.Update(ctx, invoiceID, func(current *invoice.Invoice) error {
		return current.RemoveLineItem(index, s.now())
	})
}

// SendInvoice issues the invoice after the invoice rules pass.
func (s *Service) SendInvoice(ctx context.Context, invoiceID, sentBy string) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.send")
	defer func() { end(err) }()

	return s.invoices.Update(ctx, invoiceID, func(current *invoice.Invoice) error {
		if err := failedRules(s.rules.Validate(ctx, invoice.AggregateType, current)); err != nil {
			return err
		}
		return current.Send(sentBy, s.now())
	})
}

// RecordInvoicePayment settles a sent invoice.
func (s *Service) RecordInvoicePayment(ctx context.Context, invoiceID string, amount invoice.Money, method, reference string) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.record_payment")
	defer func() { end(err) }()

	return s.invoices.Update(ctx, invoiceID, func(current *invoice.Invoice) error {
		return current.RecordPayment(amount, method, reference, s.now())
	})
}

// CancelInvoice voids an unpaid invoice.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID, reason string) (inv *invoice.Invoice, err error) {
	ctx, end := s.span(ctx, "crm.invoice.cancel")
	defer func() { end(err) }()

	return s.invoices.Update(ctx, invoiceID, func(current *invoice.Invoice) error {
		return current.Cancel(reason, s.now())
	})
}

// CreateClient registers a new client.
func (s *Service) CreateClient(ctx context.Context, input client.CreateInput) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.create")
	defer func() { end(err) }()

	clientID, err := s.newID()
	if err != nil {
		return nil, err
	}
	c, err = client.Create(clientID, input, s.now())
	if err != nil {
		return nil, err
	}
	if err = s.clients.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateClientProfile records changed profile fields.
func (s *Service) UpdateClientProfile(ctx context.Context, clientID string, fields map[string]string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.update_profile")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.UpdateProfile(fields, s.now())
	})
}

// AssignAccountManager assigns the client's account manager.
func (s *Service) AssignAccountManager(ctx context.Context, clientID, managerID string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.assign_account_manager")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.AssignAccountManager(managerID, s.now())
	})
}

// UpdateClientLeadScore sets the client's lead score.
func (s *Service) UpdateClientLeadScore(ctx context.Context, clientID string, score int) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.update_lead_score")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.UpdateLeadScore(score, s.now())
	})
}

// AddClientTag tags the client; already-present tags are a no-op.
func (s *Service) AddClientTag(ctx context.Context, clientID, tag string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.add_tag")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.AddTag(tag, s.now())
	})
}

// RemoveClientTag untags the client; absent tags are a no-op.
func (s *Service) RemoveClientTag(ctx context.Context, clientID, tag string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.remove_tag")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.RemoveTag(tag, s.now())
	})
}

// DeactivateClient deactivates the client with a reason.
func (s *Service) DeactivateClient(ctx context.Context, clientID, reason string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.deactivate")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.Deactivate(reason, s.now())
	})
}

// ReactivateClient reactivates a deactivated client.
func (s *Service) ReactivateClient(ctx context.Context, clientID string) (c *client.Client, err error) {
	ctx, end := s.span(ctx, "crm.client.reactivate")
	defer func() { end(err) }()

	return s.clients.Update(ctx, clientID, func(current *client.Client) error {
		return current.Reactivate(s.now())
	})
}

// ReviewClient runs the client rules, e.g. the unassigned high-value
// warning.
func (s *Service) ReviewClient(ctx context.Context, clientID string) ([]rules.Result, error) {
	c, err := s.clients.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.rules.Validate(ctx, client.AggregateType, c), nil
}

// RegisterModel registers a new AI model.
func (s *Service) RegisterModel(ctx context.Context, input aimodel.RegisterInput) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.register")
	defer func() { end(err) }()

	modelID, err := s.newID()
	if err != nil {
		return nil, err
	}
	m, err = aimodel.Register(modelID, input, s.now())
	if err != nil {
		return nil, err
	}
	if err = s.models.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AddModelVersion adds a version to the model's catalog.
func (s *Service) AddModelVersion(ctx context.Context, modelID, version string, accuracy float64, artifactURI string) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.add_version")
	defer func() { end(err) }()

	return s.models.Update(ctx, modelID, func(current *aimodel.Model) error {
		return current.AddVersion(version, accuracy, artifactURI, s.now())
	})
}

// ApproveModelVersion approves a version for deployment.
func (s *Service) ApproveModelVersion(ctx context.Context, modelID, version, approvedBy string) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.approve_version")
	defer func() { end(err) }()

	return s.models.Update(ctx, modelID, func(current *aimodel.Model) error {
		return current.ApproveVersion(version, approvedBy, s.now())
	})
}

// DeployModelVersion deploys an approved version after the deployment rules
// pass.
func (s *Service) DeployModelVersion(ctx context.Context, modelID, version, environment, deploymentName, deployedBy string) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.deploy")
	defer func() { end(err) }()

	return s.models.Update(ctx, modelID, func(current *aimodel.Model) error {
		if err := failedRules(s.rules.Validate(ctx, aimodel.AggregateType, rules.DeployReview{
			Model:   current,
			Version: version,
		})); err != nil {
			return err
		}
		return current.Deploy(version, environment, deploymentName, deployedBy, s.now())
	})
}

// RetireModel retires the model; its history stays replayable.
func (s *Service) RetireModel(ctx context.Context, modelID, reason string) (m *aimodel.Model, err error) {
	ctx, end := s.span(ctx, "crm.aimodel.retire")
	defer func() { end(err) }()

	return s.models.Update(ctx, modelID, func(current *aimodel.Model) error {
		return current.Retire(reason, s.now())
	})
}
