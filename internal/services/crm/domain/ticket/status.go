package ticket

// Status describes the lifecycle state of a support ticket.
type Status string

const (
	// StatusOpen indicates the ticket awaits an agent response.
	StatusOpen Status = "open"
	// StatusInProgress indicates an agent is actively working the ticket.
	StatusInProgress Status = "in_progress"
	// StatusResolved indicates the agent marked the ticket resolved.
	StatusResolved Status = "resolved"
	// StatusClosed indicates the ticket is finished. Closed is terminal.
	StatusClosed Status = "closed"
)

// Priority describes ticket urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsValid reports whether the priority is a known urgency level.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

var allowedTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusClosed},
	StatusInProgress: {StatusResolved, StatusClosed},
	StatusResolved:   {StatusOpen, StatusClosed},
	StatusClosed:     {},
}

// IsStatusTransitionAllowed reports whether a ticket may move between the
// given statuses. Resolved tickets may reopen; closed tickets may not move.
func IsStatusTransitionAllowed(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
