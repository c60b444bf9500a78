package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/event"
	"github.com/aicsynergy/platform/internal/services/crm/domain/ticket"
	"github.com/aicsynergy/platform/internal/services/crm/snapshot"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
	"github.com/aicsynergy/platform/internal/services/crm/storage/memory"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var ticketHydrator = Hydrator[*ticket.Ticket]{
	New:     ticket.New,
	Restore: ticket.Restore,
}

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *capturePublisher) Publish(_ context.Context, events []event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *capturePublisher) published() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]event.Event, len(p.events))
	copy(events, p.events)
	return events
}

func newTicketRepository(t *testing.T, opts ...Option) (*Repository[*ticket.Ticket], *memory.EventStore) {
	t.Helper()
	events := memory.NewEventStore()
	repo, err := New(events, ticketHydrator, opts...)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo, events
}

func openTestTicket(t *testing.T, id string) *ticket.Ticket {
	t.Helper()
	tk, err := ticket.Open(id, ticket.OpenInput{
		Subject:     "gpu node unreachable",
		RequesterID: "client-1",
		Priority:    ticket.PriorityHigh,
	}, baseTime)
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return tk
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	repo, _ := newTicketRepository(t)
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := tk.AssignAgent("agent-1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := tk.UncommittedEvents(); got != nil {
		t.Fatalf("expected cleared buffer after save, got %d events", len(got))
	}

	loaded, err := repo.Load(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version() != 2 || loaded.AssigneeID != "agent-1" || loaded.Status != ticket.StatusInProgress {
		t.Fatalf("unexpected loaded state version=%d assignee=%q status=%q",
			loaded.Version(), loaded.AssigneeID, loaded.Status)
	}
}

func TestLoadUnknownAggregate(t *testing.T) {
	repo, _ := newTicketRepository(t)

	if _, err := repo.Load(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveWithoutEventsIsNoop(t *testing.T) {
	repo, events := newTicketRepository(t)
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("second save: %v", err)
	}
	version, err := events.LatestVersion(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if version != 1 {
		t.Fatalf("stream version = %d, want 1", version)
	}
}

func TestSaveConflictKeepsBuffer(t *testing.T) {
	repo, _ := newTicketRepository(t)
	ctx := context.Background()

	first := openTestTicket(t, "ticket-1")
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Two sessions load the same version and race their writes.
	winner, err := repo.Load(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("load winner: %v", err)
	}
	loser, err := repo.Load(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("load loser: %v", err)
	}
	if err := winner.AssignAgent("agent-1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}
	if err := repo.Save(ctx, winner); err != nil {
		t.Fatalf("save winner: %v", err)
	}
	if err := loser.AssignAgent("agent-2", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}

	err = repo.Save(ctx, loser)
	var conflict *storage.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflict.ActualVersion != 2 || conflict.ExpectedVersion != 1 {
		t.Fatalf("conflict versions actual=%d expected=%d", conflict.ActualVersion, conflict.ExpectedVersion)
	}
	if len(loser.UncommittedEvents()) != 1 {
		t.Fatal("conflict must leave the uncommitted buffer intact")
	}
}

func TestUpdateRetriesConflicts(t *testing.T) {
	repo, _ := newTicketRepository(t)
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The first attempt is raced by another writer; the retry reloads
	// and sees the winner's event.
	raced := false
	updated, err := repo.Update(ctx, "ticket-1", func(current *ticket.Ticket) error {
		if !raced {
			raced = true
			other, loadErr := repo.Load(ctx, "ticket-1")
			if loadErr != nil {
				return loadErr
			}
			if assignErr := other.AssignAgent("agent-1", baseTime.Add(time.Minute)); assignErr != nil {
				return assignErr
			}
			if saveErr := repo.Save(ctx, other); saveErr != nil {
				return saveErr
			}
		}
		return current.AddMessage("client-1", ticket.AuthorCustomer, "any update?", baseTime.Add(2*time.Minute))
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version() != 3 {
		t.Fatalf("version = %d, want 3", updated.Version())
	}
	if updated.AssigneeID != "agent-1" || updated.MessageCount != 1 {
		t.Fatalf("retry lost state assignee=%q messages=%d", updated.AssigneeID, updated.MessageCount)
	}
}

func TestUpdateDoesNotRetryDomainErrors(t *testing.T) {
	repo, _ := newTicketRepository(t)
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}

	attempts := 0
	wantErr := errors.New("ticket is closed")
	_, err := repo.Update(ctx, "ticket-1", func(*ticket.Ticket) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("mutate ran %d times, want 1", attempts)
	}
}

func TestSavePublishesCommittedEvents(t *testing.T) {
	publisher := &capturePublisher{}
	repo, _ := newTicketRepository(t, WithPublisher(publisher))
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := tk.AssignAgent("agent-1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("assign agent: %v", err)
	}
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}

	published := publisher.published()
	if len(published) != 2 {
		t.Fatalf("published %d events, want 2", len(published))
	}
	if published[0].Type != ticket.TypeOpened || published[1].Type != ticket.TypeAgentAssigned {
		t.Fatalf("unexpected published types %s, %s", published[0].Type, published[1].Type)
	}
}

func TestLoadUsesSnapshot(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	manager, err := snapshot.NewManager(snapshots, snapshot.WithInterval(3))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	repo, events := newTicketRepository(t, WithSnapshots(manager), WithPageSize(2))
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	now := baseTime
	for i := 0; i < 6; i++ {
		now = now.Add(time.Minute)
		if err := tk.AddMessage("client-1", ticket.AuthorCustomer, fmt.Sprintf("update %d", i), now); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := snapshots.LatestSnapshot(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("expected snapshot after save: %v", err)
	}
	if snap.Version != 7 {
		t.Fatalf("snapshot version = %d, want 7", snap.Version)
	}

	loaded, err := repo.Load(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version() != 7 || loaded.MessageCount != 6 {
		t.Fatalf("loaded version=%d messages=%d", loaded.Version(), loaded.MessageCount)
	}

	// State from a snapshot-seeded load must match a full replay.
	full := ticket.New("ticket-1")
	history, err := events.LoadStream(ctx, "ticket-1", 0, -1)
	if err != nil {
		t.Fatalf("load stream: %v", err)
	}
	for _, evt := range history {
		if err := full.ApplyHistory(evt); err != nil {
			t.Fatalf("apply history: %v", err)
		}
	}
	if loaded.MessageCount != full.MessageCount || loaded.Status != full.Status || loaded.Version() != full.Version() {
		t.Fatal("snapshot-seeded load diverged from full replay")
	}
}

func TestLoadRecoversFromCorruptSnapshot(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	manager, err := snapshot.NewManager(snapshots)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	repo, _ := newTicketRepository(t, WithSnapshots(manager))
	ctx := context.Background()

	tk := openTestTicket(t, "ticket-1")
	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := snapshots.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "ticket-1", AggregateType: ticket.AggregateType, Version: 1,
		State: []byte("not json"), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	loaded, err := repo.Load(ctx, "ticket-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version() != 1 || loaded.Subject != "gpu node unreachable" {
		t.Fatalf("unexpected recovered state version=%d subject=%q", loaded.Version(), loaded.Subject)
	}
	if _, err := snapshots.LatestSnapshot(ctx, "ticket-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("corrupt snapshot should have been dropped, got %v", err)
	}
}
