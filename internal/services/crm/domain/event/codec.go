package event

import (
	"encoding/json"
	"fmt"
)

// Codec decodes stored envelopes back into the typed payloads of one
// aggregate kind. Each aggregate package builds its codec once at init and
// reuses it for every replay.
type Codec struct {
	aggregateType string
	factories     map[Type]func() Payload
}

// NewCodec creates a codec for the given aggregate type.
func NewCodec(aggregateType string) *Codec {
	return &Codec{
		aggregateType: aggregateType,
		factories:     make(map[Type]func() Payload),
	}
}

// Register wires a payload factory for one event type. Registering the same
// type twice panics: it indicates two payload structs claiming one schema.
func (c *Codec) Register(factory func() Payload) *Codec {
	if factory == nil {
		panic("event codec: nil payload factory")
	}
	t := factory().EventType()
	if _, exists := c.factories[t]; exists {
		panic(fmt.Sprintf("event codec: duplicate payload registration for %s", t))
	}
	c.factories[t] = factory
	return c
}

// Types returns all event types the codec can decode.
func (c *Codec) Types() []Type {
	types := make([]Type, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	return types
}

// Decode unmarshals the envelope payload into its registered typed payload.
// Unknown event types are an error: aggregate replay must never skip an
// event it does not understand.
func (c *Codec) Decode(evt Event) (Payload, error) {
	factory, ok := c.factories[evt.Type]
	if !ok {
		return nil, fmt.Errorf("decode %s event: unknown event type %q", c.aggregateType, evt.Type)
	}
	payload := factory()
	if len(evt.PayloadJSON) > 0 {
		if err := json.Unmarshal(evt.PayloadJSON, payload); err != nil {
			return nil, fmt.Errorf("decode %s event %s: %w", c.aggregateType, evt.Type, err)
		}
	}
	return payload, nil
}
