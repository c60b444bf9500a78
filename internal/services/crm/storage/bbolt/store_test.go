package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/storage"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.LatestSnapshot(ctx, "agg-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "agg-1", AggregateType: "ticket", Version: 100, State: []byte(`{"status":"open"}`), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	snap, err := store.LatestSnapshot(ctx, "agg-1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap.Version != 100 || snap.AggregateType != "ticket" || string(snap.State) != `{"status":"open"}` {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.TakenAt.Equal(baseTime) {
		t.Fatalf("taken at %v, want %v", snap.TakenAt, baseTime)
	}
}

func TestOlderSnapshotDoesNotOverwrite(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "agg-1", AggregateType: "ticket", Version: 200, State: []byte(`{"v":200}`), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "agg-1", AggregateType: "ticket", Version: 100, State: []byte(`{"v":100}`), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	snap, err := store.LatestSnapshot(ctx, "agg-1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap.Version != 200 {
		t.Fatalf("snapshot version = %d, want 200", snap.Version)
	}
}

func TestDeleteSnapshots(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, storage.Snapshot{
		AggregateID: "agg-1", AggregateType: "ticket", Version: 10, State: []byte(`{}`), TakenAt: baseTime,
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := store.DeleteSnapshots(ctx, "agg-1"); err != nil {
		t.Fatalf("delete snapshots: %v", err)
	}
	if _, err := store.LatestSnapshot(ctx, "agg-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
