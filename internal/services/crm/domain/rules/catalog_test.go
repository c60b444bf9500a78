package rules

import (
	"context"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/aimodel"
	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
)

var catalogTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine()
	if err := RegisterDefaults(engine); err != nil {
		t.Fatalf("register defaults: %v", err)
	}
	return engine
}

func TestEmptyInvoiceFailsCritically(t *testing.T) {
	engine := defaultEngine(t)
	inv, err := invoice.Create("invoice-1", invoice.CreateInput{
		InvoiceNumber: "INV-1",
		ClientID:      "client-1",
		DueDate:       catalogTime.AddDate(0, 1, 0),
	}, catalogTime)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	results := engine.Validate(context.Background(), invoice.AggregateType, inv)
	// line_items_present is critical, so currency never runs.
	if len(results) != 1 {
		t.Fatalf("expected short-circuit, got %d results", len(results))
	}
	if failure, ok := FirstFailure(results); !ok || failure.RuleName != "invoice.line_items_present" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestPopulatedInvoicePasses(t *testing.T) {
	engine := defaultEngine(t)
	inv, err := invoice.Create("invoice-1", invoice.CreateInput{
		InvoiceNumber: "INV-1",
		ClientID:      "client-1",
		DueDate:       catalogTime.AddDate(0, 1, 0),
	}, catalogTime)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := inv.AddLineItem(invoice.LineItem{
		Description:    "support retainer",
		Quantity:       1,
		UnitPriceCents: 50000,
	}, catalogTime); err != nil {
		t.Fatalf("add line item: %v", err)
	}

	results := engine.Validate(context.Background(), invoice.AggregateType, inv)
	if _, failed := FirstFailure(results); failed {
		t.Fatalf("expected pass, got %+v", results)
	}
}

func TestHighValueClientWithoutManagerWarns(t *testing.T) {
	engine := defaultEngine(t)
	c, err := client.Create("client-1", client.CreateInput{
		Name:       "Acme",
		ClientType: client.TypeEnterprise,
		Email:      "ops@acme.example",
	}, catalogTime)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := c.UpdateLeadScore(95, catalogTime); err != nil {
		t.Fatalf("update lead score: %v", err)
	}

	results := engine.Validate(context.Background(), client.AggregateType, c)
	var warned bool
	for _, result := range results {
		if result.RuleName == "client.high_value_assigned" && result.Warning != "" {
			warned = true
		}
		if !result.Valid {
			t.Fatalf("unexpected failure %+v", result)
		}
	}
	if !warned {
		t.Fatal("expected high value warning")
	}
}

func TestTicketSLAWarning(t *testing.T) {
	engine := defaultEngine(t)
	tk, err := ticket.Open("ticket-1", ticket.OpenInput{
		Subject:     "prod outage",
		RequesterID: "client-1",
		Priority:    ticket.PriorityUrgent,
	}, catalogTime)
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}

	within := engine.Validate(context.Background(), ticket.AggregateType,
		TicketReview{Ticket: tk, Now: catalogTime.Add(time.Hour)})
	for _, result := range within {
		if result.Warning != "" {
			t.Fatalf("no warning expected inside the window, got %+v", result)
		}
	}

	past := engine.Validate(context.Background(), ticket.AggregateType,
		TicketReview{Ticket: tk, Now: catalogTime.Add(6 * time.Hour)})
	var warned bool
	for _, result := range past {
		if result.RuleName == "ticket.first_response_sla" && result.Warning != "" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected SLA warning past the window")
	}

	// An agent response clears the warning.
	if err := tk.AddMessage("agent-1", ticket.AuthorAgent, "on it", catalogTime.Add(time.Minute)); err != nil {
		t.Fatalf("agent message: %v", err)
	}
	responded := engine.Validate(context.Background(), ticket.AggregateType,
		TicketReview{Ticket: tk, Now: catalogTime.Add(6 * time.Hour)})
	for _, result := range responded {
		if result.Warning != "" {
			t.Fatalf("no warning expected after first response, got %+v", result)
		}
	}
}

func TestDeployRules(t *testing.T) {
	engine := defaultEngine(t)
	m, err := aimodel.Register("model-1", aimodel.RegisterInput{Name: "forecaster"}, catalogTime)
	if err != nil {
		t.Fatalf("register model: %v", err)
	}
	if err := m.AddVersion("1.0.0", 0.72, "", catalogTime); err != nil {
		t.Fatalf("add version: %v", err)
	}

	unapproved := engine.Validate(context.Background(), aimodel.AggregateType,
		DeployReview{Model: m, Version: "1.0.0"})
	// Approval is critical, so the accuracy rule never runs.
	if len(unapproved) != 1 {
		t.Fatalf("expected short-circuit, got %+v", unapproved)
	}
	if failure, ok := FirstFailure(unapproved); !ok || failure.RuleName != "aimodel.deploy_requires_approval" {
		t.Fatalf("unexpected results %+v", unapproved)
	}

	if err := m.ApproveVersion("1.0.0", "reviewer-1", catalogTime); err != nil {
		t.Fatalf("approve version: %v", err)
	}
	approved := engine.Validate(context.Background(), aimodel.AggregateType,
		DeployReview{Model: m, Version: "1.0.0"})
	if _, failed := FirstFailure(approved); failed {
		t.Fatalf("expected pass, got %+v", approved)
	}
	var warned bool
	for _, result := range approved {
		if result.RuleName == "aimodel.minimum_accuracy" && result.Warning != "" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected low accuracy warning")
	}
}
