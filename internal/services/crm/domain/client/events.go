package client

import (
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// Event types for the client aggregate.
const (
	TypeCreated                event.Type = "client.created"
	TypeProfileUpdated         event.Type = "client.profile_updated"
	TypeAccountManagerAssigned event.Type = "client.account_manager_assigned"
	TypeLeadScoreUpdated       event.Type = "client.lead_score_updated"
	TypeTagAdded               event.Type = "client.tag_added"
	TypeTagRemoved             event.Type = "client.tag_removed"
	TypeDeactivated            event.Type = "client.deactivated"
	TypeReactivated            event.Type = "client.reactivated"
)

// Created records a new client joining the roster.
type Created struct {
	Name              string `json:"name"`
	ClientType        Type   `json:"client_type"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Industry          string `json:"industry,omitempty"`
	AcquisitionSource string `json:"acquisition_source,omitempty"`
}

// ProfileUpdated records changed profile fields as deltas. Only the fields
// present in the map changed; replay merges them over the current profile.
type ProfileUpdated struct {
	Fields map[string]string `json:"fields"`
}

// AccountManagerAssigned records account manager ownership.
type AccountManagerAssigned struct {
	ManagerID string `json:"manager_id"`
}

// LeadScoreUpdated records a new lead score in the range 0 to 100.
type LeadScoreUpdated struct {
	Score int `json:"score"`
}

// TagAdded records a tag being attached to the client.
type TagAdded struct {
	Tag string `json:"tag"`
}

// TagRemoved records a tag being detached from the client.
type TagRemoved struct {
	Tag string `json:"tag"`
}

// Deactivated records a soft deactivation with its reason.
type Deactivated struct {
	Reason string `json:"reason"`
}

// Reactivated records a deactivated client returning to active.
type Reactivated struct{}

func (Created) EventType() event.Type                { return TypeCreated }
func (ProfileUpdated) EventType() event.Type         { return TypeProfileUpdated }
func (AccountManagerAssigned) EventType() event.Type { return TypeAccountManagerAssigned }
func (LeadScoreUpdated) EventType() event.Type       { return TypeLeadScoreUpdated }
func (TagAdded) EventType() event.Type               { return TypeTagAdded }
func (TagRemoved) EventType() event.Type             { return TypeTagRemoved }
func (Deactivated) EventType() event.Type            { return TypeDeactivated }
func (Reactivated) EventType() event.Type            { return TypeReactivated }

// Codec decodes stored client events into their typed payloads.
func Codec() *event.Codec {
	return event.NewCodec(AggregateType).
		Register(func() event.Payload { return &Created{} }).
		Register(func() event.Payload { return &ProfileUpdated{} }).
		Register(func() event.Payload { return &AccountManagerAssigned{} }).
		Register(func() event.Payload { return &LeadScoreUpdated{} }).
		Register(func() event.Payload { return &TagAdded{} }).
		Register(func() event.Payload { return &TagRemoved{} }).
		Register(func() event.Payload { return &Deactivated{} }).
		Register(func() event.Payload { return &Reactivated{} })
}
