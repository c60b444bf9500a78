package ticket

import (
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// Event types for the ticket aggregate. The payload schemas below are
// append-only: adding an optional JSON field keeps the type, renaming or
// removing one requires a new type string.
const (
	TypeOpened        event.Type = "ticket.opened"
	TypeAgentAssigned event.Type = "ticket.agent_assigned"
	TypeMessageAdded  event.Type = "ticket.message_added"
	TypeResolved      event.Type = "ticket.resolved"
	TypeClosed        event.Type = "ticket.closed"
	TypeEscalated     event.Type = "ticket.escalated"
)

// Author roles for ticket messages.
const (
	AuthorAgent    = "agent"
	AuthorCustomer = "customer"
)

// Opened records the creation of a ticket.
type Opened struct {
	Subject     string   `json:"subject"`
	Description string   `json:"description,omitempty"`
	RequesterID string   `json:"requester_id"`
	Priority    Priority `json:"priority"`
}

// AgentAssigned records an agent taking ownership of the ticket.
type AgentAssigned struct {
	AgentID string `json:"agent_id"`
}

// MessageAdded records a message on the ticket thread. A customer message
// on a resolved ticket reopens it; the reopen is derived during replay, not
// stored as a separate event.
type MessageAdded struct {
	AuthorID   string `json:"author_id"`
	AuthorRole string `json:"author_role"`
	Body       string `json:"body"`
}

// Resolved records the agent marking the ticket resolved.
type Resolved struct {
	ResolvedBy string `json:"resolved_by"`
	Resolution string `json:"resolution,omitempty"`
}

// Closed records the ticket reaching its terminal state.
type Closed struct {
	ClosedBy string `json:"closed_by"`
}

// Escalated records a priority bump to urgent.
type Escalated struct {
	EscalatedBy string `json:"escalated_by"`
	Reason      string `json:"reason,omitempty"`
}

func (Opened) EventType() event.Type        { return TypeOpened }
func (AgentAssigned) EventType() event.Type { return TypeAgentAssigned }
func (MessageAdded) EventType() event.Type  { return TypeMessageAdded }
func (Resolved) EventType() event.Type      { return TypeResolved }
func (Closed) EventType() event.Type        { return TypeClosed }
func (Escalated) EventType() event.Type     { return TypeEscalated }

// Codec decodes stored ticket events into their typed payloads.
func Codec() *event.Codec {
	return event.NewCodec(AggregateType).
		Register(func() event.Payload { return &Opened{} }).
		Register(func() event.Payload { return &AgentAssigned{} }).
		Register(func() event.Payload { return &MessageAdded{} }).
		Register(func() event.Payload { return &Resolved{} }).
		Register(func() event.Payload { return &Closed{} }).
		Register(func() event.Payload { return &Escalated{} })
}
