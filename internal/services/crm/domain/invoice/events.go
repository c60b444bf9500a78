package invoice

import (
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// Event types for the invoice aggregate.
const (
	TypeCreated         event.Type = "invoice.created"
	TypeLineItemAdded   event.Type = "invoice.line_item_added"
	TypeLineItemRemoved event.Type = "invoice.line_item_removed"
	TypeSent            event.Type = "invoice.sent"
	TypePaymentRecorded event.Type = "invoice.payment_recorded"
	TypeCancelled       event.Type = "invoice.cancelled"
)

// Created records the creation of a draft invoice.
type Created struct {
	InvoiceNumber string    `json:"invoice_number"`
	ClientID      string    `json:"client_id"`
	Currency      string    `json:"currency"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`
	Notes         string    `json:"notes,omitempty"`
}

// LineItemAdded records one line item. It carries the raw item only;
// subtotals and totals are recomputed while folding, never stored.
type LineItemAdded struct {
	Item LineItem `json:"item"`
}

// LineItemRemoved records the removal of the line item at the given index.
// The removed item rides along so consumers can adjust totals without the
// full invoice state.
type LineItemRemoved struct {
	Index int      `json:"index"`
	Item  LineItem `json:"item"`
}

// Sent records the invoice being issued to the client.
type Sent struct {
	SentBy string `json:"sent_by,omitempty"`
}

// PaymentRecorded records a payment settling the invoice.
type PaymentRecorded struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Method      string `json:"method,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Cancelled records the invoice being voided.
type Cancelled struct {
	Reason string `json:"reason,omitempty"`
}

func (Created) EventType() event.Type         { return TypeCreated }
func (LineItemAdded) EventType() event.Type   { return TypeLineItemAdded }
func (LineItemRemoved) EventType() event.Type { return TypeLineItemRemoved }
func (Sent) EventType() event.Type            { return TypeSent }
func (PaymentRecorded) EventType() event.Type { return TypePaymentRecorded }
func (Cancelled) EventType() event.Type       { return TypeCancelled }

// Codec decodes stored invoice events into their typed payloads.
func Codec() *event.Codec {
	return event.NewCodec(AggregateType).
		Register(func() event.Payload { return &Created{} }).
		Register(func() event.Payload { return &LineItemAdded{} }).
		Register(func() event.Payload { return &LineItemRemoved{} }).
		Register(func() event.Payload { return &Sent{} }).
		Register(func() event.Payload { return &PaymentRecorded{} }).
		Register(func() event.Payload { return &Cancelled{} })
}
