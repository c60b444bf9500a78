package snapshot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/domain/client"
	"github.com/aicsynergy/platform/internal/services/crm/storage"
	"github.com/aicsynergy/platform/internal/services/crm/storage/memory"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	id            string
	aggregateType string
	version       uint64
	state         []byte
	stateErr      error
}

func (s *stubSource) ID() string            { return s.id }
func (s *stubSource) AggregateType() string { return s.aggregateType }
func (s *stubSource) Version() uint64       { return s.version }
func (s *stubSource) SnapshotState() ([]byte, error) {
	return s.state, s.stateErr
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memory.SnapshotStore) {
	t.Helper()
	store := memory.NewSnapshotStore()
	opts = append([]Option{WithClock(func() time.Time { return baseTime })}, opts...)
	manager, err := NewManager(store, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager, store
}

func TestNewManagerRequiresStore(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestTakePersistsCurrentState(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	src := &stubSource{id: "agg-1", aggregateType: "ticket", version: 7, state: []byte(`{"v":7}`)}
	if err := manager.Take(ctx, src); err != nil {
		t.Fatalf("take: %v", err)
	}

	snap, err := manager.LoadLatest(ctx, "agg-1")
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if snap.Version != 7 || snap.AggregateType != "ticket" || string(snap.State) != `{"v":7}` {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.TakenAt.Equal(baseTime) {
		t.Fatalf("taken at %v, want %v", snap.TakenAt, baseTime)
	}
}

func TestTakeRejectsUnsavedAggregate(t *testing.T) {
	manager, _ := newTestManager(t)

	src := &stubSource{id: "agg-1", aggregateType: "ticket", version: 0}
	if err := manager.Take(context.Background(), src); err == nil {
		t.Fatal("expected error for version zero aggregate")
	}
}

func TestMaybeTakeHonorsInterval(t *testing.T) {
	manager, _ := newTestManager(t, WithInterval(10))
	ctx := context.Background()

	src := &stubSource{id: "agg-1", aggregateType: "ticket", version: 9, state: []byte(`{}`)}
	taken, err := manager.MaybeTake(ctx, src)
	if err != nil {
		t.Fatalf("maybe take: %v", err)
	}
	if taken {
		t.Fatal("snapshot taken below interval")
	}

	src.version = 10
	taken, err = manager.MaybeTake(ctx, src)
	if err != nil {
		t.Fatalf("maybe take: %v", err)
	}
	if !taken {
		t.Fatal("expected snapshot at interval")
	}

	// Nine more events since the snapshot at 10 is still below interval.
	src.version = 19
	taken, err = manager.MaybeTake(ctx, src)
	if err != nil {
		t.Fatalf("maybe take: %v", err)
	}
	if taken {
		t.Fatal("snapshot taken before interval elapsed again")
	}

	src.version = 20
	taken, err = manager.MaybeTake(ctx, src)
	if err != nil {
		t.Fatalf("maybe take: %v", err)
	}
	if !taken {
		t.Fatal("expected second snapshot at interval")
	}
}

func TestMaybeTakeSkipsStaleSource(t *testing.T) {
	manager, store := newTestManager(t, WithInterval(10))
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "agg-1", AggregateType: "ticket", Version: 30, State: []byte(`{}`), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	src := &stubSource{id: "agg-1", aggregateType: "ticket", version: 25, state: []byte(`{}`)}
	taken, err := manager.MaybeTake(ctx, src)
	if err != nil {
		t.Fatalf("maybe take: %v", err)
	}
	if taken {
		t.Fatal("snapshot taken for source older than stored snapshot")
	}
}

func TestInvalidate(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	src := &stubSource{id: "agg-1", aggregateType: "ticket", version: 5, state: []byte(`{}`)}
	if err := manager.Take(ctx, src); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := manager.Invalidate(ctx, "agg-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := manager.LoadLatest(ctx, "agg-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after invalidate, got %v", err)
	}
}

// Restoring a snapshot and replaying the remaining events must land on the
// same state as replaying the whole stream.
func TestSnapshotPlusSuffixMatchesFullReplay(t *testing.T) {
	manager, _ := newTestManager(t, WithInterval(10))
	ctx := context.Background()

	live, err := client.Create("client-1", client.CreateInput{
		Name:       "Globex University",
		ClientType: client.TypeUniversity,
		Email:      "it@globex.edu",
	}, baseTime)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	now := baseTime
	for i := 0; live.Version() < 25; i++ {
		now = now.Add(time.Minute)
		if err := live.UpdateLeadScore((i%2)*40+30, now); err != nil {
			t.Fatalf("update lead score: %v", err)
		}
		now = now.Add(time.Minute)
		if err := live.AddTag(fmt.Sprintf("tag-%d", i), now); err != nil {
			t.Fatalf("add tag: %v", err)
		}
	}
	history := live.UncommittedEvents()

	// Fold the prefix, snapshot at the interval boundary, then finish.
	replaying := client.New("client-1")
	var snap storage.Snapshot
	for _, evt := range history {
		if err := replaying.ApplyHistory(evt); err != nil {
			t.Fatalf("apply history: %v", err)
		}
		taken, err := manager.MaybeTake(ctx, replaying)
		if err != nil {
			t.Fatalf("maybe take: %v", err)
		}
		if taken {
			snap, err = manager.LoadLatest(ctx, "client-1")
			if err != nil {
				t.Fatalf("load latest: %v", err)
			}
		}
	}
	if snap.Version == 0 {
		t.Fatal("expected a snapshot during replay")
	}

	restored, err := client.Restore(snap.Version, snap.State)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	for _, evt := range history {
		if evt.AggregateVersion <= snap.Version {
			continue
		}
		if err := restored.ApplyHistory(evt); err != nil {
			t.Fatalf("apply suffix: %v", err)
		}
	}

	restored.ClearUncommittedEvents()
	replaying.ClearUncommittedEvents()
	if !reflect.DeepEqual(restored, replaying) {
		t.Fatalf("restored state diverged from full replay:\n%+v\n%+v", restored, replaying)
	}
}
