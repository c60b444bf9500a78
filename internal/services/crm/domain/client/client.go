// Package client implements the client roster aggregate.
//
// Clients are never deleted. Deactivation is a soft state carrying its
// reason, so the full account history stays replayable.
package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/aggregate"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// AggregateType is the aggregate kind recorded on client events.
const AggregateType = "client"

// Type classifies a client account.
type Type string

const (
	TypeSMB        Type = "smb"
	TypeEnterprise Type = "enterprise"
	TypeUniversity Type = "university"
	TypeColocation Type = "colocation"
)

// IsValid reports whether the client type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeSMB, TypeEnterprise, TypeUniversity, TypeColocation:
		return true
	}
	return false
}

// Profile field keys accepted by UpdateProfile.
const (
	ProfileIndustry               = "industry"
	ProfileCompanySize            = "company_size"
	ProfileTimezone               = "timezone"
	ProfilePreferredCommunication = "preferred_communication"
)

// Client is the client roster aggregate.
type Client struct {
	aggregate.Root

	Name              string
	ClientType        Type
	Email             string
	Phone             string
	Profile           map[string]string
	AcquisitionSource string
	AccountManagerID  string
	LeadScore         int
	LeadScoreSet      bool
	Tags              []string
	Active            bool
	DeactivatedReason string
}

var codec = Codec()

// New creates an empty client ready for replay.
func New(id string) *Client {
	return &Client{Root: aggregate.NewRoot(id, AggregateType)}
}

// CreateInput describes the data needed to register a client.
type CreateInput struct {
	Name              string
	ClientType        Type
	Email             string
	Phone             string
	Industry          string
	AcquisitionSource string
}

// Create registers a new active client and raises its first event.
func Create(id string, input CreateInput, now time.Time) (*Client, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if input.Name == "" {
		return nil, errors.New(errors.CodeClientNameEmpty, "client name is required")
	}
	if input.Email == "" {
		return nil, errors.New(errors.CodeClientEmailEmpty, "client email is required")
	}
	if !input.ClientType.IsValid() {
		return nil, errors.WithMetadata(errors.CodeClientTypeInvalid,
			"client type is invalid",
			map[string]string{"client_type": string(input.ClientType)})
	}

	c := New(id)
	if err := c.raise(Created{
		Name:              input.Name,
		ClientType:        input.ClientType,
		Email:             input.Email,
		Phone:             strings.TrimSpace(input.Phone),
		Industry:          strings.TrimSpace(input.Industry),
		AcquisitionSource: strings.TrimSpace(input.AcquisitionSource),
	}, now); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateProfile records changed profile fields. Only known keys with
// changed values are kept; a no-op update raises nothing.
func (c *Client) UpdateProfile(fields map[string]string, now time.Time) error {
	if err := c.requireActive(); err != nil {
		return err
	}

	delta := make(map[string]string)
	for key, value := range fields {
		switch key {
		case ProfileIndustry, ProfileCompanySize, ProfileTimezone, ProfilePreferredCommunication:
		default:
			return errors.WithMetadata(errors.CodeValidationFailed,
				"unknown profile field",
				map[string]string{"field": key})
		}
		value = strings.TrimSpace(value)
		if c.Profile[key] != value {
			delta[key] = value
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return c.raise(ProfileUpdated{Fields: delta}, now)
}

// AssignAccountManager records account manager ownership.
func (c *Client) AssignAccountManager(managerID string, now time.Time) error {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return errors.New(errors.CodeValidationFailed, "account manager id is required")
	}
	if err := c.requireActive(); err != nil {
		return err
	}
	if c.AccountManagerID == managerID {
		return nil
	}
	return c.raise(AccountManagerAssigned{ManagerID: managerID}, now)
}

// UpdateLeadScore records a new lead score between 0 and 100.
func (c *Client) UpdateLeadScore(score int, now time.Time) error {
	if score < 0 || score > 100 {
		return errors.WithMetadata(errors.CodeClientLeadScoreRange,
			"lead score must be between 0 and 100",
			map[string]string{"score": fmt.Sprintf("%d", score)})
	}
	if err := c.requireActive(); err != nil {
		return err
	}
	if c.LeadScoreSet && c.LeadScore == score {
		return nil
	}
	return c.raise(LeadScoreUpdated{Score: score}, now)
}

// AddTag attaches a tag. Adding an existing tag raises nothing.
func (c *Client) AddTag(tag string, now time.Time) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New(errors.CodeValidationFailed, "tag is required")
	}
	if err := c.requireActive(); err != nil {
		return err
	}
	if c.hasTag(tag) {
		return nil
	}
	return c.raise(TagAdded{Tag: tag}, now)
}

// RemoveTag detaches a tag. Removing an absent tag raises nothing.
func (c *Client) RemoveTag(tag string, now time.Time) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New(errors.CodeValidationFailed, "tag is required")
	}
	if err := c.requireActive(); err != nil {
		return err
	}
	if !c.hasTag(tag) {
		return nil
	}
	return c.raise(TagRemoved{Tag: tag}, now)
}

// Deactivate soft-deactivates the client with a reason.
func (c *Client) Deactivate(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.New(errors.CodeValidationFailed, "deactivation reason is required")
	}
	if !c.Active {
		return errors.WithMetadata(errors.CodeClientDeactivated,
			"client is already deactivated",
			map[string]string{"client_id": c.ID()})
	}
	return c.raise(Deactivated{Reason: reason}, now)
}

// Reactivate returns a deactivated client to active.
func (c *Client) Reactivate(now time.Time) error {
	if c.Active {
		return errors.WithMetadata(errors.CodeInvalidStateTransition,
			"client is already active",
			map[string]string{"client_id": c.ID()})
	}
	return c.raise(Reactivated{}, now)
}

// IsHighValue reports whether the lead score marks this client high value.
func (c *Client) IsHighValue() bool {
	return c.LeadScoreSet && c.LeadScore >= 80
}

// ApplyHistory folds one stored event into the client during replay.
func (c *Client) ApplyHistory(evt event.Event) error {
	return c.Apply(evt, true, c.when)
}

func (c *Client) raise(payload event.Payload, now time.Time) error {
	return c.Raise(payload, now, c.when)
}

func (c *Client) when(evt event.Event) error {
	payload, err := codec.Decode(evt)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *Created:
		c.Name = p.Name
		c.ClientType = p.ClientType
		c.Email = p.Email
		c.Phone = p.Phone
		c.Profile = map[string]string{}
		if p.Industry != "" {
			c.Profile[ProfileIndustry] = p.Industry
		}
		c.AcquisitionSource = p.AcquisitionSource
		c.Active = true
	case *ProfileUpdated:
		if c.Profile == nil {
			c.Profile = map[string]string{}
		}
		for key, value := range p.Fields {
			if value == "" {
				delete(c.Profile, key)
				continue
			}
			c.Profile[key] = value
		}
	case *AccountManagerAssigned:
		c.AccountManagerID = p.ManagerID
	case *LeadScoreUpdated:
		c.LeadScore = p.Score
		c.LeadScoreSet = true
	case *TagAdded:
		if !c.hasTag(p.Tag) {
			c.Tags = append(c.Tags, p.Tag)
			sort.Strings(c.Tags)
		}
	case *TagRemoved:
		for i, tag := range c.Tags {
			if tag == p.Tag {
				c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)
				break
			}
		}
	case *Deactivated:
		c.Active = false
		c.DeactivatedReason = p.Reason
	case *Reactivated:
		c.Active = true
		c.DeactivatedReason = ""
	default:
		return fmt.Errorf("apply client event: unhandled payload %T", payload)
	}
	return nil
}

func (c *Client) requireActive() error {
	if c.Active {
		return nil
	}
	return errors.WithMetadata(errors.CodeClientDeactivated,
		"client is deactivated",
		map[string]string{"client_id": c.ID()})
}

func (c *Client) hasTag(tag string) bool {
	for _, existing := range c.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

type snapshotState struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	ClientType        Type              `json:"client_type"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone,omitempty"`
	Profile           map[string]string `json:"profile"`
	AcquisitionSource string            `json:"acquisition_source,omitempty"`
	AccountManagerID  string            `json:"account_manager_id,omitempty"`
	LeadScore         int               `json:"lead_score"`
	LeadScoreSet      bool              `json:"lead_score_set"`
	Tags              []string          `json:"tags"`
	Active            bool              `json:"active"`
	DeactivatedReason string            `json:"deactivated_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// SnapshotState marshals the client state for snapshotting.
func (c *Client) SnapshotState() ([]byte, error) {
	return json.Marshal(snapshotState{
		ID:                c.ID(),
		Name:              c.Name,
		ClientType:        c.ClientType,
		Email:             c.Email,
		Phone:             c.Phone,
		Profile:           c.Profile,
		AcquisitionSource: c.AcquisitionSource,
		AccountManagerID:  c.AccountManagerID,
		LeadScore:         c.LeadScore,
		LeadScoreSet:      c.LeadScoreSet,
		Tags:              c.Tags,
		Active:            c.Active,
		DeactivatedReason: c.DeactivatedReason,
		CreatedAt:         c.CreatedAt(),
		UpdatedAt:         c.UpdatedAt(),
	})
}

// Restore rebuilds a client from a snapshot taken at the given version.
func Restore(version uint64, state []byte) (*Client, error) {
	var s snapshotState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore client snapshot: %w", err)
	}
	return &Client{
		Root:              aggregate.RestoreRoot(s.ID, AggregateType, version, s.CreatedAt, s.UpdatedAt),
		Name:              s.Name,
		ClientType:        s.ClientType,
		Email:             s.Email,
		Phone:             s.Phone,
		Profile:           s.Profile,
		AcquisitionSource: s.AcquisitionSource,
		AccountManagerID:  s.AccountManagerID,
		LeadScore:         s.LeadScore,
		LeadScoreSet:      s.LeadScoreSet,
		Tags:              s.Tags,
		Active:            s.Active,
		DeactivatedReason: s.DeactivatedReason,
	}, nil
}
