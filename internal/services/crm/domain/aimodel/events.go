package aimodel

import (
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// Event types for the AI model aggregate.
const (
	TypeRegistered      event.Type = "aimodel.registered"
	TypeVersionAdded    event.Type = "aimodel.version_added"
	TypeVersionApproved event.Type = "aimodel.version_approved"
	TypeVersionDeployed event.Type = "aimodel.version_deployed"
	TypeRetired         event.Type = "aimodel.retired"
)

// Registered records a new model entering the registry.
type Registered struct {
	Name        string `json:"name"`
	ModelType   string `json:"model_type,omitempty"`
	Framework   string `json:"framework,omitempty"`
	Description string `json:"description,omitempty"`
}

// VersionAdded records a newly trained model version.
type VersionAdded struct {
	Version     string  `json:"version"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	ArtifactURI string  `json:"artifact_uri,omitempty"`
}

// VersionApproved records a version passing review. Approval identity and
// time live on the event; the folded state gains an Approval value.
type VersionApproved struct {
	Version    string `json:"version"`
	ApprovedBy string `json:"approved_by"`
}

// VersionDeployed records an approved version reaching an environment.
type VersionDeployed struct {
	Version        string `json:"version"`
	Environment    string `json:"environment"`
	DeploymentName string `json:"deployment_name"`
	DeployedBy     string `json:"deployed_by,omitempty"`
}

// Retired records the model leaving service. Retire is soft; history and
// deployments stay replayable.
type Retired struct {
	Reason string `json:"reason,omitempty"`
}

func (Registered) EventType() event.Type      { return TypeRegistered }
func (VersionAdded) EventType() event.Type    { return TypeVersionAdded }
func (VersionApproved) EventType() event.Type { return TypeVersionApproved }
func (VersionDeployed) EventType() event.Type { return TypeVersionDeployed }
func (Retired) EventType() event.Type         { return TypeRetired }

// Codec decodes stored model events into their typed payloads.
func Codec() *event.Codec {
	return event.NewCodec(AggregateType).
		Register(func() event.Payload { return &Registered{} }).
		Register(func() event.Payload { return &VersionAdded{} }).
		Register(func() event.Payload { return &VersionApproved{} }).
		Register(func() event.Payload { return &VersionDeployed{} }).
		Register(func() event.Payload { return &Retired{} })
}
