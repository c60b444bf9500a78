package aimodel

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
)

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func registeredModel(t *testing.T) *Model {
	t.Helper()
	m, err := Register("model-1", RegisterInput{
		Name:      "churn-predictor",
		ModelType: "classification",
		Framework: "pytorch",
	}, baseTime)
	if err != nil {
		t.Fatalf("register model: %v", err)
	}
	return m
}

func TestRegisterRequiresName(t *testing.T) {
	if _, err := Register("model-1", RegisterInput{}, baseTime); !stderrors.Is(err, errors.New(errors.CodeModelNameEmpty, "")) {
		t.Fatalf("expected name error, got %v", err)
	}
}

func TestAddVersion(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("", 0.9, "", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelVersionEmpty, "")) {
		t.Fatalf("expected version error, got %v", err)
	}
	if err := m.AddVersion("1.0.0", 0.91, "s3://models/churn/1.0.0", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}
	if err := m.AddVersion("1.0.0", 0.92, "", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelVersionDuplicate, "")) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	v := m.LatestVersion()
	if v == nil || v.Version != "1.0.0" {
		t.Fatalf("latest version = %+v, want 1.0.0", v)
	}
	if v.IsApproved() {
		t.Fatal("new version must start unapproved")
	}
}

func TestDeployRequiresApproval(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("1.0.0", 0.91, "", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}

	if err := m.Deploy("1.0.0", "lab", "churn-prod", "ops-1", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelEnvironmentInvalid, "")) {
		t.Fatalf("expected environment error, got %v", err)
	}
	if err := m.Deploy("2.0.0", EnvProduction, "churn-prod", "ops-1", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelVersionUnknown, "")) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
	if err := m.Deploy("1.0.0", EnvProduction, "churn-prod", "ops-1", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelVersionUnapproved, "")) {
		t.Fatalf("expected unapproved error, got %v", err)
	}

	if err := m.ApproveVersion("1.0.0", "reviewer-1", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("approve version: %v", err)
	}
	if err := m.Deploy("1.0.0", EnvProduction, "churn-prod", "ops-1", baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	v := m.ProductionVersion()
	if v == nil || v.Version != "1.0.0" {
		t.Fatalf("production version = %+v, want 1.0.0", v)
	}
	if v.Approval == nil || v.Approval.ApprovedBy != "reviewer-1" {
		t.Fatalf("approval = %+v, want reviewer-1", v.Approval)
	}
}

func TestApproveTwiceFails(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("1.0.0", 0.91, "", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}
	if err := m.ApproveVersion("1.0.0", "reviewer-1", baseTime); err != nil {
		t.Fatalf("approve version: %v", err)
	}
	if err := m.ApproveVersion("1.0.0", "reviewer-2", baseTime); !stderrors.Is(err, errors.New(errors.CodeInvalidStateTransition, "")) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRetireIsSoftAndTerminal(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("1.0.0", 0.91, "", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}
	if err := m.Retire("superseded", baseTime); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if !m.Retired || m.RetiredReason != "superseded" {
		t.Fatalf("unexpected state retired=%v reason=%q", m.Retired, m.RetiredReason)
	}
	if err := m.AddVersion("2.0.0", 0.95, "", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelRetired, "")) {
		t.Fatalf("expected retired error, got %v", err)
	}
	if err := m.Retire("again", baseTime); !stderrors.Is(err, errors.New(errors.CodeModelRetired, "")) {
		t.Fatalf("expected retired error, got %v", err)
	}
	// History stays readable after retirement.
	if m.FindVersion("1.0.0") == nil {
		t.Fatal("versions must survive retirement")
	}
}

func TestReplayMatchesLiveState(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("1.0.0", 0.91, "s3://models/churn/1.0.0", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}
	if err := m.ApproveVersion("1.0.0", "reviewer-1", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("approve version: %v", err)
	}
	if err := m.Deploy("1.0.0", EnvStaging, "churn-staging", "ops-1", baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	replayed := New(m.ID())
	for _, evt := range m.UncommittedEvents() {
		if err := replayed.ApplyHistory(evt); err != nil {
			t.Fatalf("apply history: %v", err)
		}
	}

	if replayed.Version() != m.Version() {
		t.Fatalf("replayed version = %d, want %d", replayed.Version(), m.Version())
	}
	v := replayed.FindVersion("1.0.0")
	if v == nil || !v.IsApproved() {
		t.Fatalf("replayed version state %+v diverges", v)
	}
	if len(replayed.Deployments) != 1 || replayed.Deployments[0].Environment != EnvStaging {
		t.Fatalf("replayed deployments %+v diverge", replayed.Deployments)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := registeredModel(t)
	if err := m.AddVersion("1.0.0", 0.91, "", baseTime); err != nil {
		t.Fatalf("add version: %v", err)
	}
	if err := m.ApproveVersion("1.0.0", "reviewer-1", baseTime); err != nil {
		t.Fatalf("approve version: %v", err)
	}

	state, err := m.SnapshotState()
	if err != nil {
		t.Fatalf("snapshot state: %v", err)
	}
	restored, err := Restore(m.Version(), state)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.ID() != m.ID() || restored.Version() != m.Version() {
		t.Fatalf("restored identity %s@%d, want %s@%d", restored.ID(), restored.Version(), m.ID(), m.Version())
	}
	v := restored.FindVersion("1.0.0")
	if v == nil || !v.IsApproved() {
		t.Fatal("restored approval lost")
	}
	if err := restored.Deploy("1.0.0", EnvProduction, "churn-prod", "ops-1", baseTime); err != nil {
		t.Fatalf("deploy after restore: %v", err)
	}
	if restored.Version() != m.Version()+1 {
		t.Fatalf("version after restore = %d, want %d", restored.Version(), m.Version()+1)
	}
}
