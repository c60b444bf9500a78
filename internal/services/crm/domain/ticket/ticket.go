// Package ticket implements the support ticket aggregate.
//
// A ticket moves open → in_progress → resolved → closed. A customer message
// on a resolved ticket reopens it to open, which is derived while folding
// the message event so replay stays a pure function of the stream.
package ticket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/aggregate"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// AggregateType is the aggregate kind recorded on ticket events.
const AggregateType = "ticket"

// Ticket is the support ticket aggregate. State is a fold over its event
// stream; mutate it only through the business methods below.
type Ticket struct {
	aggregate.Root

	Subject         string
	Description     string
	RequesterID     string
	AssigneeID      string
	Priority        Priority
	Status          Status
	MessageCount    int
	ReopenedCount   int
	FirstResponseAt time.Time
	ResolvedAt      time.Time
	Resolution      string
}

var codec = Codec()

// New creates an empty ticket ready for replay.
func New(id string) *Ticket {
	return &Ticket{Root: aggregate.NewRoot(id, AggregateType)}
}

// OpenInput describes the data needed to open a ticket.
type OpenInput struct {
	Subject     string
	Description string
	RequesterID string
	Priority    Priority
}

// Open creates a new ticket and raises its first event.
func Open(id string, input OpenInput, now time.Time) (*Ticket, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	input.RequesterID = strings.TrimSpace(input.RequesterID)
	if input.Subject == "" {
		return nil, errors.New(errors.CodeTicketSubjectEmpty, "ticket subject is required")
	}
	if input.RequesterID == "" {
		return nil, errors.New(errors.CodeValidationFailed, "ticket requester is required")
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if !input.Priority.IsValid() {
		return nil, errors.WithMetadata(errors.CodeValidationFailed,
			"ticket priority is invalid",
			map[string]string{"priority": string(input.Priority)})
	}

	t := New(id)
	if err := t.raise(Opened{
		Subject:     input.Subject,
		Description: strings.TrimSpace(input.Description),
		RequesterID: input.RequesterID,
		Priority:    input.Priority,
	}, now); err != nil {
		return nil, err
	}
	return t, nil
}

// AssignAgent puts the ticket in progress under the given agent.
func (t *Ticket) AssignAgent(agentID string, now time.Time) error {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return errors.New(errors.CodeTicketAgentEmpty, "agent id is required")
	}
	if !IsStatusTransitionAllowed(t.Status, StatusInProgress) {
		return t.transitionError(StatusInProgress)
	}
	return t.raise(AgentAssigned{AgentID: agentID}, now)
}

// AddMessage appends a message to the ticket thread.
//
// The first agent message records the first response. A customer message on
// a resolved ticket reopens it.
func (t *Ticket) AddMessage(authorID, authorRole, body string, now time.Time) error {
	authorID = strings.TrimSpace(authorID)
	body = strings.TrimSpace(body)
	if authorID == "" {
		return errors.New(errors.CodeValidationFailed, "message author is required")
	}
	if authorRole != AuthorAgent && authorRole != AuthorCustomer {
		return errors.WithMetadata(errors.CodeValidationFailed,
			"message author role is invalid",
			map[string]string{"author_role": authorRole})
	}
	if body == "" {
		return errors.New(errors.CodeTicketMessageEmpty, "message body is required")
	}
	if t.Status == StatusClosed {
		return errors.WithMetadata(errors.CodeTicketAlreadyClosed,
			"cannot add a message to a closed ticket",
			map[string]string{"ticket_id": t.ID()})
	}
	return t.raise(MessageAdded{AuthorID: authorID, AuthorRole: authorRole, Body: body}, now)
}

// Resolve marks the ticket resolved.
func (t *Ticket) Resolve(resolvedBy, resolution string, now time.Time) error {
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return errors.New(errors.CodeTicketAgentEmpty, "resolving agent is required")
	}
	if !IsStatusTransitionAllowed(t.Status, StatusResolved) {
		if t.Status == StatusClosed {
			return t.transitionError(StatusResolved)
		}
		return errors.WithMetadata(errors.CodeTicketNotResolvable,
			fmt.Sprintf("cannot resolve a ticket in status %s", t.Status),
			map[string]string{"ticket_id": t.ID(), "status": string(t.Status)})
	}
	return t.raise(Resolved{ResolvedBy: resolvedBy, Resolution: strings.TrimSpace(resolution)}, now)
}

// Close moves the ticket to its terminal state.
func (t *Ticket) Close(closedBy string, now time.Time) error {
	closedBy = strings.TrimSpace(closedBy)
	if closedBy == "" {
		return errors.New(errors.CodeTicketAgentEmpty, "closing agent is required")
	}
	if t.Status == StatusClosed {
		return errors.WithMetadata(errors.CodeTicketAlreadyClosed,
			"ticket is already closed",
			map[string]string{"ticket_id": t.ID()})
	}
	return t.raise(Closed{ClosedBy: closedBy}, now)
}

// Escalate bumps the ticket priority to urgent.
func (t *Ticket) Escalate(escalatedBy, reason string, now time.Time) error {
	escalatedBy = strings.TrimSpace(escalatedBy)
	if escalatedBy == "" {
		return errors.New(errors.CodeTicketAgentEmpty, "escalating agent is required")
	}
	if t.Status == StatusClosed || t.Priority == PriorityUrgent {
		return errors.WithMetadata(errors.CodeTicketNotEscalatable,
			"ticket cannot be escalated",
			map[string]string{
				"ticket_id": t.ID(),
				"status":    string(t.Status),
				"priority":  string(t.Priority),
			})
	}
	return t.raise(Escalated{EscalatedBy: escalatedBy, Reason: strings.TrimSpace(reason)}, now)
}

// ApplyHistory folds one stored event into the ticket during replay.
func (t *Ticket) ApplyHistory(evt event.Event) error {
	return t.Apply(evt, true, t.when)
}

func (t *Ticket) raise(payload event.Payload, now time.Time) error {
	return t.Raise(payload, now, t.when)
}

func (t *Ticket) when(evt event.Event) error {
	payload, err := codec.Decode(evt)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *Opened:
		t.Subject = p.Subject
		t.Description = p.Description
		t.RequesterID = p.RequesterID
		t.Priority = p.Priority
		t.Status = StatusOpen
	case *AgentAssigned:
		t.AssigneeID = p.AgentID
		t.Status = StatusInProgress
	case *MessageAdded:
		t.MessageCount++
		if p.AuthorRole == AuthorAgent && t.FirstResponseAt.IsZero() {
			t.FirstResponseAt = evt.OccurredAt
		}
		if p.AuthorRole == AuthorCustomer && t.Status == StatusResolved {
			t.Status = StatusOpen
			t.ReopenedCount++
			t.ResolvedAt = time.Time{}
			t.Resolution = ""
		}
	case *Resolved:
		t.Status = StatusResolved
		t.ResolvedAt = evt.OccurredAt
		t.Resolution = p.Resolution
	case *Closed:
		t.Status = StatusClosed
	case *Escalated:
		t.Priority = PriorityUrgent
	default:
		return fmt.Errorf("apply ticket event: unhandled payload %T", payload)
	}
	return nil
}

func (t *Ticket) transitionError(to Status) error {
	return errors.WithMetadata(errors.CodeInvalidStateTransition,
		fmt.Sprintf("ticket transition %s -> %s is not allowed", t.Status, to),
		map[string]string{
			"ticket_id": t.ID(),
			"from":      string(t.Status),
			"to":        string(to),
		})
}

type snapshotState struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Description     string    `json:"description,omitempty"`
	RequesterID     string    `json:"requester_id"`
	AssigneeID      string    `json:"assignee_id,omitempty"`
	Priority        Priority  `json:"priority"`
	Status          Status    `json:"status"`
	MessageCount    int       `json:"message_count"`
	ReopenedCount   int       `json:"reopened_count"`
	FirstResponseAt time.Time `json:"first_response_at,omitempty"`
	ResolvedAt      time.Time `json:"resolved_at,omitempty"`
	Resolution      string    `json:"resolution,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SnapshotState marshals the ticket state for snapshotting.
func (t *Ticket) SnapshotState() ([]byte, error) {
	return json.Marshal(snapshotState{
		ID:              t.ID(),
		Subject:         t.Subject,
		Description:     t.Description,
		RequesterID:     t.RequesterID,
		AssigneeID:      t.AssigneeID,
		Priority:        t.Priority,
		Status:          t.Status,
		MessageCount:    t.MessageCount,
		ReopenedCount:   t.ReopenedCount,
		FirstResponseAt: t.FirstResponseAt,
		ResolvedAt:      t.ResolvedAt,
		Resolution:      t.Resolution,
		CreatedAt:       t.CreatedAt(),
		UpdatedAt:       t.UpdatedAt(),
	})
}

// Restore rebuilds a ticket from a snapshot taken at the given version.
func Restore(version uint64, state []byte) (*Ticket, error) {
	var s snapshotState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore ticket snapshot: %w", err)
	}
	return &Ticket{
		Root:            aggregate.RestoreRoot(s.ID, AggregateType, version, s.CreatedAt, s.UpdatedAt),
		Subject:         s.Subject,
		Description:     s.Description,
		RequesterID:     s.RequesterID,
		AssigneeID:      s.AssigneeID,
		Priority:        s.Priority,
		Status:          s.Status,
		MessageCount:    s.MessageCount,
		ReopenedCount:   s.ReopenedCount,
		FirstResponseAt: s.FirstResponseAt,
		ResolvedAt:      s.ResolvedAt,
		Resolution:      s.Resolution,
	}, nil
}
