package ticket

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/platform/errors"
	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openTicket(t *testing.T) *Ticket {
	t.Helper()
	tk, err := Open("ticket-1", OpenInput{
		Subject:     "model API returns 500",
		Description: "deploy endpoint failing since this morning",
		RequesterID: "client-7",
		Priority:    PriorityHigh,
	}, baseTime)
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return tk
}

func TestOpenValidatesInput(t *testing.T) {
	if _, err := Open("ticket-1", OpenInput{RequesterID: "client-7"}, baseTime); !stderrors.Is(err, errors.New(errors.CodeTicketSubjectEmpty, "")) {
		t.Fatalf("expected subject error, got %v", err)
	}
	if _, err := Open("ticket-1", OpenInput{Subject: "help"}, baseTime); err == nil {
		t.Fatal("expected error for missing requester")
	}
	if _, err := Open("ticket-1", OpenInput{Subject: "help", RequesterID: "c", Priority: "critical"}, baseTime); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

func TestOpenDefaultsPriority(t *testing.T) {
	tk, err := Open("ticket-1", OpenInput{Subject: "help", RequesterID: "client-7"}, baseTime)
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	if tk.Priority != PriorityNormal {
		t.Fatalf("priority = %s, want %s", tk.Priority, PriorityNormal)
	}
}

func TestLifecycleScenario(t *testing.T) {
	tk := openTicket(t)

	if err := tk.AssignAgent("agent-3", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}
	if err := tk.AddMessage("agent-3", AuthorAgent, "looking into it", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("agent message: %v", err)
	}
	if err := tk.Resolve("agent-3", "restarted the serving pods", baseTime.Add(3*time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := tk.AddMessage("client-7", AuthorCustomer, "still failing for us", baseTime.Add(4*time.Minute)); err != nil {
		t.Fatalf("customer message: %v", err)
	}

	if got := tk.Version(); got != 5 {
		t.Fatalf("version = %d, want 5", got)
	}
	if tk.Status != StatusOpen {
		t.Fatalf("status = %s, want %s", tk.Status, StatusOpen)
	}
	if tk.ReopenedCount != 1 {
		t.Fatalf("reopened count = %d, want 1", tk.ReopenedCount)
	}
	if !tk.ResolvedAt.IsZero() {
		t.Fatal("reopen must clear resolved timestamp")
	}
	if tk.Resolution != "" {
		t.Fatal("reopen must clear resolution")
	}
	want := baseTime.Add(2 * time.Minute)
	if !tk.FirstResponseAt.Equal(want) {
		t.Fatalf("first response at %v, want %v", tk.FirstResponseAt, want)
	}
	if got := len(tk.UncommittedEvents()); got != 5 {
		t.Fatalf("uncommitted events = %d, want 5", got)
	}
}

func TestReplayMatchesLiveState(t *testing.T) {
	tk := openTicket(t)
	if err := tk.AssignAgent("agent-3", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}
	if err := tk.AddMessage("agent-3", AuthorAgent, "on it", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("agent message: %v", err)
	}
	if err := tk.Resolve("agent-3", "fixed", baseTime.Add(3*time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	replayed := New(tk.ID())
	for _, evt := range tk.UncommittedEvents() {
		if err := replayed.ApplyHistory(evt); err != nil {
			t.Fatalf("apply history: %v", err)
		}
	}

	if replayed.Version() != tk.Version() {
		t.Fatalf("replayed version = %d, want %d", replayed.Version(), tk.Version())
	}
	if replayed.Status != tk.Status || replayed.AssigneeID != tk.AssigneeID {
		t.Fatalf("replayed state %+v diverges from live state %+v", replayed, tk)
	}
	if !replayed.FirstResponseAt.Equal(tk.FirstResponseAt) {
		t.Fatal("replayed first response timestamp diverges")
	}
	if len(replayed.UncommittedEvents()) != 0 {
		t.Fatal("history replay must not buffer events")
	}
}

func TestFirstResponseSetOnce(t *testing.T) {
	tk := openTicket(t)
	if err := tk.AddMessage("agent-3", AuthorAgent, "first", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("agent message: %v", err)
	}
	if err := tk.AddMessage("agent-3", AuthorAgent, "second", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("agent message: %v", err)
	}
	want := baseTime.Add(time.Minute)
	if !tk.FirstResponseAt.Equal(want) {
		t.Fatalf("first response at %v, want %v", tk.FirstResponseAt, want)
	}
}

func TestCustomerMessageOnOpenDoesNotReopen(t *testing.T) {
	tk := openTicket(t)
	if err := tk.AddMessage("client-7", AuthorCustomer, "any update?", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("customer message: %v", err)
	}
	if tk.ReopenedCount != 0 {
		t.Fatalf("reopened count = %d, want 0", tk.ReopenedCount)
	}
}

func TestClosedTicketRejectsChanges(t *testing.T) {
	tk := openTicket(t)
	if err := tk.Close("agent-3", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := tk.AddMessage("client-7", AuthorCustomer, "hello?", baseTime.Add(2*time.Minute)); !stderrors.Is(err, errors.New(errors.CodeTicketAlreadyClosed, "")) {
		t.Fatalf("expected already-closed error, got %v", err)
	}
	if err := tk.Resolve("agent-3", "", baseTime.Add(2*time.Minute)); !stderrors.Is(err, errors.New(errors.CodeInvalidStateTransition, "")) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := tk.Close("agent-3", baseTime.Add(2*time.Minute)); !stderrors.Is(err, errors.New(errors.CodeTicketAlreadyClosed, "")) {
		t.Fatalf("expected already-closed error, got %v", err)
	}
	if err := tk.Escalate("agent-3", "vip", baseTime.Add(2*time.Minute)); !stderrors.Is(err, errors.New(errors.CodeTicketNotEscalatable, "")) {
		t.Fatalf("expected not-escalatable error, got %v", err)
	}
	if got := tk.Version(); got != 2 {
		t.Fatalf("rejected commands must not advance version, got %d", got)
	}
}

func TestEscalateBumpsPriority(t *testing.T) {
	tk := openTicket(t)
	if err := tk.Escalate("agent-3", "enterprise client", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if tk.Priority != PriorityUrgent {
		t.Fatalf("priority = %s, want %s", tk.Priority, PriorityUrgent)
	}
	if err := tk.Escalate("agent-3", "again", baseTime.Add(2*time.Minute)); err == nil {
		t.Fatal("expected error escalating an urgent ticket")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusResolved, true},
		{StatusInProgress, StatusResolved, true},
		{StatusResolved, StatusOpen, true},
		{StatusResolved, StatusClosed, true},
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusResolved, false},
		{StatusResolved, StatusInProgress, false},
	}
	for _, tc := range cases {
		if got := IsStatusTransitionAllowed(tc.from, tc.to); got != tc.allowed {
			t.Errorf("transition %s -> %s = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	tk := openTicket(t)
	if err := tk.AssignAgent("agent-3", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}

	state, err := tk.SnapshotState()
	if err != nil {
		t.Fatalf("snapshot state: %v", err)
	}
	restored, err := Restore(tk.Version(), state)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.ID() != tk.ID() || restored.Version() != tk.Version() {
		t.Fatalf("restored identity %s@%d, want %s@%d", restored.ID(), restored.Version(), tk.ID(), tk.Version())
	}
	if restored.Status != tk.Status || restored.AssigneeID != tk.AssigneeID || restored.Subject != tk.Subject {
		t.Fatalf("restored state %+v diverges from %+v", restored, tk)
	}

	// A restored ticket must accept the next event in the stream.
	if err := restored.Resolve("agent-3", "done", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("resolve after restore: %v", err)
	}
	if restored.Version() != tk.Version()+1 {
		t.Fatalf("version after restore = %d, want %d", restored.Version(), tk.Version()+1)
	}
}

func TestCodecRejectsUnknownType(t *testing.T) {
	evt := event.Event{Type: "ticket.deleted"}
	if _, err := Codec().Decode(evt); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
