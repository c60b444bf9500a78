package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/aimodel"
	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/domain/invoice"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
)

// TicketReview is the subject for ticket rules. Now is passed in so rules
// stay clock-free like aggregate folds.
type TicketReview struct {
	Ticket *ticket.Ticket
	Now    time.Time
}

// DeployReview is the subject for model deployment rules.
type DeployReview struct {
	Model   *aimodel.Model
	Version string
}

// firstResponseSLA is how long a high-urgency ticket may wait for its first
// agent response before the escalation warning fires.
const firstResponseSLA = 4 * time.Hour

// minimumAccuracy is the advisory floor for deployed model accuracy.
const minimumAccuracy = 0.8

// RegisterDefaults installs the standard rule set on an engine.
func RegisterDefaults(engine *Engine) error {
	registrations := []struct {
		entityType string
		rule       Rule
	}{
		{invoice.AggregateType, invoiceLineItemsRule{}},
		{invoice.AggregateType, invoiceCurrencyRule{}},
		{client.AggregateType, clientLeadScoreRule{}},
		{client.AggregateType, clientUnassignedRule{}},
		{ticket.AggregateType, ticketSLARule{}},
		{aimodel.AggregateType, deployApprovalRule{}},
		{aimodel.AggregateType, deployAccuracyRule{}},
	}
	for _, r := range registrations {
		if err := engine.Register(r.entityType, r.rule); err != nil {
			return err
		}
	}
	return nil
}

func wrongSubject(name string, subject any) Result {
	return Fail(name, fmt.Sprintf("unexpected subject %T", subject))
}

type invoiceLineItemsRule struct{}

func (invoiceLineItemsRule) Name() string        { return "invoice.line_items_present" }
func (invoiceLineItemsRule) Description() string { return "an invoice must carry at least one line item" }
func (invoiceLineItemsRule) Priority() int       { return 5 }

func (r invoiceLineItemsRule) Validate(ctx context.Context, subject any) Result {
	inv, ok := subject.(*invoice.Invoice)
	if !ok {
		return wrongSubject(r.Name(), subject)
	}
	if len(inv.LineItems) == 0 {
		return Fail(r.Name(), "invoice has no line items")
	}
	return Pass(r.Name())
}

type invoiceCurrencyRule struct{}

func (invoiceCurrencyRule) Name() string { return "invoice.currency_consistent" }
func (invoiceCurrencyRule) Description() string {
	return "an invoice must carry a three-letter currency code and a paid amount in that currency"
}
func (invoiceCurrencyRule) Priority() int { return 8 }

func (r invoiceCurrencyRule) Validate(ctx context.Context, subject any) Result {
	inv, ok := subject.(*invoice.Invoice)
	if !ok {
		return wrongSubject(r.Name(), subject)
	}
	if len(inv.Currency) != 3 {
		return Fail(r.Name(), fmt.Sprintf("invalid currency %q", inv.Currency))
	}
	if !inv.PaidAmount.IsZero() && inv.PaidAmount.Currency != inv.Currency {
		return Fail(r.Name(), fmt.Sprintf("paid amount in %s on a %s invoice", inv.PaidAmount.Currency, inv.Currency))
	}
	return Pass(r.Name())
}

type clientLeadScoreRule struct{}

func (clientLeadScoreRule) Name() string        { return "client.lead_score_bounds" }
func (clientLeadScoreRule) Description() string { return "lead scores stay between 0 and 100" }
func (clientLeadScoreRule) Priority() int       { return 20 }

func (r clientLeadScoreRule) Validate(ctx context.Context, subject any) Result {
	c, ok := subject.(*client.Client)
	if !ok {
		return wrongSubject(r.Name(), subject)
	}
	if c.LeadScoreSet && (c.LeadScore < 0 || c.LeadScore > 100) {
		return Fail(r.Name(), fmt.Sprintf("lead score %d out of bounds", c.LeadScore))
	}
	return Pass(r.Name())
}

type clientUnassignedRule struct{}

func (clientUnassignedRule) Name() string { return "client.high_value_assigned" }
func (clientUnassignedRule) Description() string {
	return "high value clients should have an account manager"
}
func (clientUnassignedRule) Priority() int { return 60 }

func (r clientUnassignedRule) Validate(ctx context.Context, subject any) Result {
	c, ok := subject.(*client.Client)
	if !ok {
		return wrongSubject(r.Name(), subject)
	}
	if c.IsHighValue() && c.AccountManagerID == "" {
		return Warn(r.Name(), "high value client has no account manager")
	}
	return Pass(r.Name())
}

type ticketSLARule struct{}

func (ticketSLARule) Name() string { return "ticket.first_response_sla" }
func (ticketSLARule) Description() string {
	return "urgent tickets past the first-response window should be escalated"
}
func (ticketSLARule) Priority() int { return 40 }

func (r ticketSLARule) Validate(ctx context.Context, subject any) Result {
	review, ok := subject.(TicketReview)
	if !ok {
		return wrongSubject(r.Name(), subject)
	}
	tk := review.Ticket
	if tk == nil {
		return wrongSubject(r.Name(), subject)
	}
	if tk.Status == ticket.StatusResolved || tk.Status == ticket.StatusClosed {
		return Pass(r.Name())
	}
	if tk.Priority != ticket.PriorityHigh && tk.Priority != ticket.PriorityUrgent {
		return Pass(r.Name())
	}
	if !tk.FirstResponseAt.IsZero() {
		return Pass(r.Name())
	}
	if review.Now.Sub(tk.CreatedAt()) > firstResponseSLA {
		return Warn(r.Name(), "first response window exceeded, consider escalating")
	}
	return Pass(r.Name())
}

type deployApprovalRule struct{}

func (deployApprovalRule) Name() string        { return "aimodel.deploy_requires_approval" }
func (deployApprovalRule) Description() string { return "only approved versions may deploy" }
func (deployApprovalRule) Priority() int       { return 5 }

func (r deployApprovalRule) Validate(ctx context.Context, subject any) Result {
	review, ok := subject.(DeployReview)
	if !ok || review.Model == nil {
		return wrongSubject(r.Name(), subject)
	}
	v := review.Model.FindVersion(review.Version)
	if v == nil {
		return Fail(r.Name(), fmt.Sprintf("version %q does not exist", review.Version))
	}
	if !v.IsApproved() {
		return Fail(r.Name(), fmt.Sprintf("version %q is not approved", review.Version))
	}
	return Pass(r.Name())
}

type deployAccuracyRule struct{}

func (deployAccuracyRule) Name() string { return "aimodel.minimum_accuracy" }
func (deployAccuracyRule) Description() string {
	return "deployed versions should meet the accuracy floor"
}
func (deployAccuracyRule) Priority() int { return 50 }

func (r deployAccuracyRule) Validate(ctx context.Context, subject any) Result {
	review, ok := subject.(DeployReview)
	if !ok || review.Model == nil {
		return wrongSubject(r.Name(), subject)
	}
	v := review.Model.FindVersion(review.Version)
	if v == nil {
		return Fail(r.Name(), fmt.Sprintf("version %q does not exist", review.Version))
	}
	if v.Accuracy > 0 && v.Accuracy < minimumAccuracy {
		return Warn(r.Name(), fmt.Sprintf("accuracy %.2f below the %.2f floor", v.Accuracy, minimumAccuracy))
	}
	return Pass(r.Name())
}
