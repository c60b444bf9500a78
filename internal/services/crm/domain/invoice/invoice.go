// Package invoice implements the billing invoice aggregate.
//
// An invoice moves draft → sent → paid or cancelled. Overdue is derived
// from the due date, never stored. Events carry raw facts (the line item
// added, the payment received) and totals are recomputed by folding.
package invoice

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/aggregate"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// AggregateType is the aggregate kind recorded on invoice events.
const AggregateType = "invoice"

// Status describes the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Invoice is the billing invoice aggregate.
type Invoice struct {
	aggregate.Root

	InvoiceNumber string
	ClientID      string
	Currency      string
	Status        Status
	IssueDate     time.Time
	DueDate       time.Time
	Notes         string
	LineItems     []LineItem
	PaidAmount    Money
	PaidAt        time.Time
	PaymentMethod string
	CancelReason  string
}

var codec = Codec()

// New creates an empty invoice ready for replay.
func New(id string) *Invoice {
	return &Invoice{Root: aggregate.NewRoot(id, AggregateType)}
}

// CreateInput describes the data needed to open a draft invoice.
type CreateInput struct {
	InvoiceNumber string
	ClientID      string
	Currency      string
	IssueDate     time.Time
	DueDate       time.Time
	Notes         string
}

// Create opens a new draft invoice and raises its first event.
func Create(id string, input CreateInput, now time.Time) (*Invoice, error) {
	input.InvoiceNumber = strings.TrimSpace(input.InvoiceNumber)
	input.ClientID = strings.TrimSpace(input.ClientID)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.InvoiceNumber == "" {
		return nil, errors.New(errors.CodeInvoiceNumberEmpty, "invoice number is required")
	}
	if input.ClientID == "" {
		return nil, errors.New(errors.CodeInvoiceClientEmpty, "invoice client is required")
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.IssueDate.IsZero() {
		input.IssueDate = now
	}
	if input.DueDate.IsZero() {
		return nil, errors.New(errors.CodeValidationFailed, "invoice due date is required")
	}
	if input.DueDate.Before(input.IssueDate) {
		return nil, errors.WithMetadata(errors.CodeValidationFailed,
			"invoice due date cannot be before issue date",
			map[string]string{
				"issue_date": input.IssueDate.Format(time.RFC3339),
				"due_date":   input.DueDate.Format(time.RFC3339),
			})
	}

	inv := New(id)
	if err := inv.raise(Created{
		InvoiceNumber: input.InvoiceNumber,
		ClientID:      input.ClientID,
		Currency:      input.Currency,
		IssueDate:     input.IssueDate.UTC(),
		DueDate:       input.DueDate.UTC(),
		Notes:         strings.TrimSpace(input.Notes),
	}, now); err != nil {
		return nil, err
	}
	return inv, nil
}

// AddLineItem appends a billable line to a draft invoice.
func (inv *Invoice) AddLineItem(item LineItem, now time.Time) error {
	if inv.Status != StatusDraft {
		return inv.notDraftError("add line item")
	}
	item.Description = strings.TrimSpace(item.Description)
	if err := item.Validate(); err != nil {
		return errors.Wrap(errors.CodeInvoiceLineItemInvalid, "invalid line item", err)
	}
	return inv.raise(LineItemAdded{Item: item}, now)
}

// RemoveLineItem removes the line at index from a draft invoice.
func (inv *Invoice) RemoveLineItem(index int, now time.Time) error {
	if inv.Status != StatusDraft {
		return inv.notDraftError("remove line item")
	}
	if index < 0 || index >= len(inv.LineItems) {
		return errors.WithMetadata(errors.CodeInvoiceLineItemInvalid,
			"line item index out of range",
			map[string]string{"index": fmt.Sprintf("%d", index)})
	}
	return inv.raise(LineItemRemoved{Index: index, Item: inv.LineItems[index]}, now)
}

// Send issues the invoice to the client. Drafts only, and at least one line
// item must be present.
func (inv *Invoice) Send(sentBy string, now time.Time) error {
	if inv.Status != StatusDraft {
		return inv.notDraftError("send")
	}
	if len(inv.LineItems) == 0 {
		return errors.WithMetadata(errors.CodeInvoiceLineItemMissing,
			"cannot send an invoice with no line items",
			map[string]string{"invoice_id": inv.ID()})
	}
	return inv.raise(Sent{SentBy: strings.TrimSpace(sentBy)}, now)
}

// RecordPayment settles a sent invoice. The payment currency must match the
// invoice currency.
func (inv *Invoice) RecordPayment(amount Money, method, reference string, now time.Time) error {
	switch inv.Status {
	case StatusPaid:
		return errors.WithMetadata(errors.CodeInvoiceAlreadyPaid,
			"invoice is already paid",
			map[string]string{"invoice_id": inv.ID()})
	case StatusSent:
	default:
		return errors.WithMetadata(errors.CodeInvoiceNotPayable,
			fmt.Sprintf("cannot record a payment on a %s invoice", inv.Status),
			map[string]string{"invoice_id": inv.ID(), "status": string(inv.Status)})
	}
	if amount.Currency != inv.Currency {
		return errors.WithMetadata(errors.CodeInvoiceCurrencyMismatch,
			"payment currency must match invoice currency",
			map[string]string{"invoice_currency": inv.Currency, "payment_currency": amount.Currency})
	}
	return inv.raise(PaymentRecorded{
		AmountCents: amount.Cents,
		Currency:    amount.Currency,
		Method:      strings.TrimSpace(method),
		Reference:   strings.TrimSpace(reference),
	}, now)
}

// Cancel voids the invoice. Paid invoices cannot be cancelled.
func (inv *Invoice) Cancel(reason string, now time.Time) error {
	switch inv.Status {
	case StatusPaid:
		return errors.WithMetadata(errors.CodeInvoiceAlreadyPaid,
			"cannot cancel a paid invoice",
			map[string]string{"invoice_id": inv.ID()})
	case StatusCancelled:
		return errors.WithMetadata(errors.CodeInvalidStateTransition,
			"invoice is already cancelled",
			map[string]string{"invoice_id": inv.ID()})
	}
	return inv.raise(Cancelled{Reason: strings.TrimSpace(reason)}, now)
}

// IsOverdue reports whether a sent invoice is past its due date. Overdue is
// a view over (status, due date, now), never a stored status.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.Status == StatusSent && inv.DueDate.Before(now)
}

// Subtotal is the sum of line subtotals before discount and tax.
func (inv *Invoice) Subtotal() Money {
	var cents int64
	for _, item := range inv.LineItems {
		cents += item.Subtotal()
	}
	return Money{Cents: cents, Currency: inv.Currency}
}

// TotalDiscount is the sum of line discounts.
func (inv *Invoice) TotalDiscount() Money {
	var cents int64
	for _, item := range inv.LineItems {
		cents += item.DiscountAmount()
	}
	return Money{Cents: cents, Currency: inv.Currency}
}

// TotalTax is the sum of line taxes.
func (inv *Invoice) TotalTax() Money {
	var cents int64
	for _, item := range inv.LineItems {
		cents += item.TaxAmount()
	}
	return Money{Cents: cents, Currency: inv.Currency}
}

// Total is the amount owed after discount and tax.
func (inv *Invoice) Total() Money {
	var cents int64
	for _, item := range inv.LineItems {
		cents += item.Total()
	}
	return Money{Cents: cents, Currency: inv.Currency}
}

// OutstandingBalance is the total minus payments received.
func (inv *Invoice) OutstandingBalance() Money {
	balance := inv.Total().Cents - inv.PaidAmount.Cents
	if balance < 0 {
		balance = 0
	}
	return Money{Cents: balance, Currency: inv.Currency}
}

// ApplyHistory folds one stored event into the invoice during replay.
func (inv *Invoice) ApplyHistory(evt event.Event) error {
	return inv.Apply(evt, true, inv.when)
}

func (inv *Invoice) raise(payload event.Payload, now time.Time) error {
	return inv.Raise(payload, now, inv.when)
}

func (inv *Invoice) when(evt event.Event) error {
	payload, err := codec.Decode(evt)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *Created:
		inv.InvoiceNumber = p.InvoiceNumber
		inv.ClientID = p.ClientID
		inv.Currency = p.Currency
		inv.IssueDate = p.IssueDate
		inv.DueDate = p.DueDate
		inv.Notes = p.Notes
		inv.Status = StatusDraft
	case *LineItemAdded:
		inv.LineItems = append(inv.LineItems, p.Item)
	case *LineItemRemoved:
		if p.Index < 0 || p.Index >= len(inv.LineItems) {
			return fmt.Errorf("apply invoice event: line item index %d out of range", p.Index)
		}
		inv.LineItems = append(inv.LineItems[:p.Index], inv.LineItems[p.Index+1:]...)
	case *Sent:
		inv.Status = StatusSent
	case *PaymentRecorded:
		inv.Status = StatusPaid
		inv.PaidAmount = Money{Cents: p.AmountCents, Currency: p.Currency}
		inv.PaidAt = evt.OccurredAt
		inv.PaymentMethod = p.Method
	case *Cancelled:
		inv.Status = StatusCancelled
		inv.CancelReason = p.Reason
	default:
		return fmt.Errorf("apply invoice event: unhandled payload %T", payload)
	}
	return nil
}

func (inv *Invoice) notDraftError(action string) error {
	return errors.WithMetadata(errors.CodeInvoiceNotDraft,
		fmt.Sprintf("cannot %s on a %s invoice", action, inv.Status),
		map[string]string{"invoice_id": inv.ID(), "status": string(inv.Status)})
}

type snapshotState struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	ClientID      string     `json:"client_id"`
	Currency      string     `json:"currency"`
	Status        Status     `json:"status"`
	IssueDate     time.Time  `json:"issue_date"`
	DueDate       time.Time  `json:"due_date"`
	Notes         string     `json:"notes,omitempty"`
	LineItems     []LineItem `json:"line_items"`
	PaidAmount    Money      `json:"paid_amount,omitempty"`
	PaidAt        time.Time  `json:"paid_at,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SnapshotState marshals the invoice state for snapshotting.
func (inv *Invoice) SnapshotState() ([]byte, error) {
	return json.Marshal(snapshotState{
		ID:            inv.ID(),
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID,
		Currency:      inv.Currency,
		Status:        inv.Status,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Notes:         inv.Notes,
		LineItems:     inv.LineItems,
		PaidAmount:    inv.PaidAmount,
		PaidAt:        inv.PaidAt,
		PaymentMethod: inv.PaymentMethod,
		CancelReason:  inv.CancelReason,
		CreatedAt:     inv.CreatedAt(),
		UpdatedAt:     inv.UpdatedAt(),
	})
}

// Restore rebuilds an invoice from a snapshot taken at the given version.
func Restore(version uint64, state []byte) (*Invoice, error) {
	var s snapshotState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore invoice snapshot: %w", err)
	}
	return &Invoice{
		Root:          aggregate.RestoreRoot(s.ID, AggregateType, version, s.CreatedAt, s.UpdatedAt),
		InvoiceNumber: s.InvoiceNumber,
		ClientID:      s.ClientID,
		Currency:      s.Currency,
		Status:        s.Status,
		IssueDate:     s.IssueDate,
		DueDate:       s.DueDate,
		Notes:         s.Notes,
		LineItems:     s.LineItems,
		PaidAmount:    s.PaidAmount,
		PaidAt:        s.PaidAt,
		PaymentMethod: s.PaymentMethod,
		CancelReason:  s.CancelReason,
	}, nil
}
