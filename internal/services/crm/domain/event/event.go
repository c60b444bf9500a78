package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/id"
)

// Type identifies the kind of a domain event.
type Type string

// Event is the immutable envelope persisted in the event store.
//
// AggregateVersion starts at 1 and is strictly increasing per aggregate with
// no gaps. It is both the replay ordering key and the optimistic-concurrency
// token checked on append.
type Event struct {
	// ID is the unique event identity. Equality between events is by ID.
	ID string
	// AggregateID is the aggregate instance this event belongs to.
	AggregateID string
	// AggregateType names the aggregate kind (ticket, invoice, ...).
	AggregateType string
	// AggregateVersion is the position of this event in its stream.
	AggregateVersion uint64
	// Type identifies the payload schema.
	Type Type
	// OccurredAt is when the event happened. Supplied by the caller at
	// construction time; replay never reads the wall clock.
	OccurredAt time.Time
	// PayloadJSON holds the event-specific payload as JSON.
	PayloadJSON []byte
}

// Payload is implemented by typed event payloads.
//
// Payload schemas are versioned by their Type string: adding optional JSON
// fields is backward compatible, removing or renaming a field requires a new
// Type.
type Payload interface {
	EventType() Type
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "ticket", "invoice").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// New constructs an envelope for a freshly raised payload.
//
// The caller supplies the version the event will occupy and the time it
// occurred; New only assigns identity and serializes the payload.
func New(aggregateID, aggregateType string, version uint64, payload Payload, occurredAt time.Time) (Event, error) {
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, fmt.Errorf("aggregate id is required")
	}
	if strings.TrimSpace(aggregateType) == "" {
		return Event{}, fmt.Errorf("aggregate type is required")
	}
	if version == 0 {
		return Event{}, fmt.Errorf("aggregate version must start at 1")
	}
	if payload == nil {
		return Event{}, fmt.Errorf("event payload is required")
	}
	if !payload.EventType().IsValid() {
		return Event{}, fmt.Errorf("event type is required")
	}
	if occurredAt.IsZero() {
		return Event{}, fmt.Errorf("event timestamp is required")
	}

	eventID, err := id.NewID()
	if err != nil {
		return Event{}, fmt.Errorf("assign event id: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	return Event{
		ID:               eventID,
		AggregateID:      aggregateID,
		AggregateType:    aggregateType,
		AggregateVersion: version,
		Type:             payload.EventType(),
		OccurredAt:       occurredAt.UTC().Truncate(time.Millisecond),
		PayloadJSON:      payloadJSON,
	}, nil
}

// Validate reports whether the envelope carries the fields storage requires.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(e.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if strings.TrimSpace(e.AggregateType) == "" {
		return fmt.Errorf("aggregate type is required")
	}
	if e.AggregateVersion == 0 {
		return fmt.Errorf("aggregate version must start at 1")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("event type is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	return nil
}
