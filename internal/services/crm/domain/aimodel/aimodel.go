// Package aimodel implements the AI model registry aggregate.
//
// A model accumulates versions; each version is unapproved until a review
// event adds its Approval. Deployments are allowed for approved versions
// only. Approval is modeled as an optional sub-value rather than nullable
// fields on the version, so "unapproved" and "approved" are distinct shapes.
package aimodel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/aggregate"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

// AggregateType is the aggregate kind recorded on model events.
const AggregateType = "aimodel"

// Deployment environments accepted by Deploy.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Approval marks a version as reviewed. Its presence is the approval;
// there is no approved flag to drift out of sync.
type Approval struct {
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Version is one trained iteration of the model.
type Version struct {
	Version     string    `json:"version"`
	Accuracy    float64   `json:"accuracy,omitempty"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	Approval    *Approval `json:"approval,omitempty"`
}

// IsApproved reports whether the version passed review.
func (v Version) IsApproved() bool {
	return v.Approval != nil
}

// Deployment is one rollout of an approved version.
type Deployment struct {
	Version        string    `json:"version"`
	Environment    string    `json:"environment"`
	DeploymentName string    `json:"deployment_name"`
	DeployedBy     string    `json:"deployed_by,omitempty"`
	DeployedAt     time.Time `json:"deployed_at"`
}

// Model is the AI model registry aggregate.
type Model struct {
	aggregate.Root

	Name          string
	ModelType     string
	Framework     string
	Description   string
	Versions      []Version
	Deployments   []Deployment
	Retired       bool
	RetiredReason string
}

var codec = Codec()

// New creates an empty model ready for replay.
func New(id string) *Model {
	return &Model{Root: aggregate.NewRoot(id, AggregateType)}
}

// RegisterInput describes the data needed to register a model.
type RegisterInput struct {
	Name        string
	ModelType   string
	Framework   string
	Description string
}

// Register adds a new model to the registry and raises its first event.
func Register(id string, input RegisterInput, now time.Time) (*Model, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errors.New(errors.CodeModelNameEmpty, "model name is required")
	}

	m := New(id)
	if err := m.raise(Registered{
		Name:        input.Name,
		ModelType:   strings.TrimSpace(input.ModelType),
		Framework:   strings.TrimSpace(input.Framework),
		Description: strings.TrimSpace(input.Description),
	}, now); err != nil {
		return nil, err
	}
	return m, nil
}

// AddVersion records a newly trained version. Version labels are unique
// within the model.
func (m *Model) AddVersion(version string, accuracy float64, artifactURI string, now time.Time) error {
	version = strings.TrimSpace(version)
	if version == "" {
		return errors.New(errors.CodeModelVersionEmpty, "model version is required")
	}
	if err := m.requireNotRetired(); err != nil {
		return err
	}
	if m.FindVersion(version) != nil {
		return errors.WithMetadata(errors.CodeModelVersionDuplicate,
			"model version already exists",
			map[string]string{"model_id": m.ID(), "version": version})
	}
	return m.raise(VersionAdded{
		Version:     version,
		Accuracy:    accuracy,
		ArtifactURI: strings.TrimSpace(artifactURI),
	}, now)
}

// ApproveVersion records a version passing review.
func (m *Model) ApproveVersion(version, approvedBy string, now time.Time) error {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return errors.New(errors.CodeValidationFailed, "approver is required")
	}
	if err := m.requireNotRetired(); err != nil {
		return err
	}
	existing := m.FindVersion(strings.TrimSpace(version))
	if existing == nil {
		return m.unknownVersionError(version)
	}
	if existing.IsApproved() {
		return errors.WithMetadata(errors.CodeInvalidStateTransition,
			"model version is already approved",
			map[string]string{"model_id": m.ID(), "version": existing.Version})
	}
	return m.raise(VersionApproved{Version: existing.Version, ApprovedBy: approvedBy}, now)
}

// Deploy rolls an approved version out to an environment.
func (m *Model) Deploy(version, environment, deploymentName, deployedBy string, now time.Time) error {
	environment = strings.TrimSpace(environment)
	deploymentName = strings.TrimSpace(deploymentName)
	switch environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return errors.WithMetadata(errors.CodeModelEnvironmentInvalid,
			"deployment environment is invalid",
			map[string]string{"environment": environment})
	}
	if deploymentName == "" {
		return errors.New(errors.CodeValidationFailed, "deployment name is required")
	}
	if err := m.requireNotRetired(); err != nil {
		return err
	}
	existing := m.FindVersion(strings.TrimSpace(version))
	if existing == nil {
		return m.unknownVersionError(version)
	}
	if !existing.IsApproved() {
		return errors.WithMetadata(errors.CodeModelVersionUnapproved,
			"cannot deploy an unapproved model version",
			map[string]string{"model_id": m.ID(), "version": existing.Version})
	}
	return m.raise(VersionDeployed{
		Version:        existing.Version,
		Environment:    environment,
		DeploymentName: deploymentName,
		DeployedBy:     strings.TrimSpace(deployedBy),
	}, now)
}

// Retire takes the model out of service.
func (m *Model) Retire(reason string, now time.Time) error {
	if err := m.requireNotRetired(); err != nil {
		return err
	}
	return m.raise(Retired{Reason: strings.TrimSpace(reason)}, now)
}

// FindVersion returns the version with the given label, or nil.
func (m *Model) FindVersion(version string) *Version {
	for i := range m.Versions {
		if m.Versions[i].Version == version {
			return &m.Versions[i]
		}
	}
	return nil
}

// LatestVersion returns the most recently added version, or nil.
func (m *Model) LatestVersion() *Version {
	if len(m.Versions) == 0 {
		return nil
	}
	return &m.Versions[len(m.Versions)-1]
}

// ProductionVersion returns the version of the most recent production
// deployment, or nil when nothing is in production.
func (m *Model) ProductionVersion() *Version {
	for i := len(m.Deployments) - 1; i >= 0; i-- {
		if m.Deployments[i].Environment == EnvProduction {
			return m.FindVersion(m.Deployments[i].Version)
		}
	}
	return nil
}

// ApplyHistory folds one stored event into the model during replay.
func (m *Model) ApplyHistory(evt event.Event) error {
	return m.Apply(evt, true, m.when)
}

func (m *Model) raise(payload event.Payload, now time.Time) error {
	return m.Raise(payload, now, m.when)
}

func (m *Model) when(evt event.Event) error {
	payload, err := codec.Decode(evt)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *Registered:
		m.Name = p.Name
		m.ModelType = p.ModelType
		m.Framework = p.Framework
		m.Description = p.Description
	case *VersionAdded:
		m.Versions = append(m.Versions, Version{
			Version:     p.Version,
			Accuracy:    p.Accuracy,
			ArtifactURI: p.ArtifactURI,
			AddedAt:     evt.OccurredAt,
		})
	case *VersionApproved:
		existing := m.FindVersion(p.Version)
		if existing == nil {
			return fmt.Errorf("apply model event: approval for unknown version %q", p.Version)
		}
		existing.Approval = &Approval{ApprovedBy: p.ApprovedBy, ApprovedAt: evt.OccurredAt}
	case *VersionDeployed:
		m.Deployments = append(m.Deployments, Deployment{
			Version:        p.Version,
			Environment:    p.Environment,
			DeploymentName: p.DeploymentName,
			DeployedBy:     p.DeployedBy,
			DeployedAt:     evt.OccurredAt,
		})
	case *Retired:
		m.Retired = true
		m.RetiredReason = p.Reason
	default:
		return fmt.Errorf("apply model event: unhandled payload %T", payload)
	}
	return nil
}

func (m *Model) requireNotRetired() error {
	if !m.Retired {
		return nil
	}
	return errors.WithMetadata(errors.CodeModelRetired,
		"model is retired",
		map[string]string{"model_id": m.ID()})
}

func (m *Model) unknownVersionError(version string) error {
	return errors.WithMetadata(errors.CodeModelVersionUnknown,
		"model version does not exist",
		map[string]string{"model_id": m.ID(), "version": strings.TrimSpace(version)})
}

type snapshotState struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ModelType     string       `json:"model_type,omitempty"`
	Framework     string       `json:"framework,omitempty"`
	Description   string       `json:"description,omitempty"`
	Versions      []Version    `json:"versions"`
	Deployments   []Deployment `json:"deployments"`
	Retired       bool         `json:"retired"`
	RetiredReason string       `json:"retired_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// SnapshotState marshals the model state for snapshotting.
func (m *Model) SnapshotState() ([]byte, error) {
	return json.Marshal(snapshotState{
		ID:            m.ID(),
		Name:          m.Name,
		ModelType:     m.ModelType,
		Framework:     m.Framework,
		Description:   m.Description,
		Versions:      m.Versions,
		Deployments:   m.Deployments,
		Retired:       m.Retired,
		RetiredReason: m.RetiredReason,
		CreatedAt:     m.CreatedAt(),
		UpdatedAt:     m.UpdatedAt(),
	})
}

// Restore rebuilds a model from a snapshot taken at the given version.
func Restore(version uint64, state []byte) (*Model, error) {
	var s snapshotState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore model snapshot: %w", err)
	}
	return &Model{
		Root:          aggregate.RestoreRoot(s.ID, AggregateType, version, s.CreatedAt, s.UpdatedAt),
		Name:          s.Name,
		ModelType:     s.ModelType,
		Framework:     s.Framework,
		Description:   s.Description,
		Versions:      s.Versions,
		Deployments:   s.Deployments,
		Retired:       s.Retired,
		RetiredReason: s.RetiredReason,
	}, nil
}
