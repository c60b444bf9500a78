// Package bbolt provides a BoltDB-backed snapshot cache. Snapshots are
// disposable acceleration state, so a single-file embedded store is enough;
// losing it only means slower aggregate loads.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aicsynergy/platform/internal/services/crm/storage"
	"go.etcd.io/bbolt"
)

const snapshotBucket = "snapshots"

// Store provides a BoltDB-backed snapshot store.
type Store struct {
	db *bbolt.DB
}

type snapshotRecord struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       uint64          `json:"version"`
	State         json.RawMessage `json:"state"`
	TakenAt       time.Time       `json:"taken_at"`
}

// Open opens a BoltDB-backed snapshot store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot implements storage.SnapshotStore. Older snapshots never
// overwrite newer ones.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if snap.Version == 0 {
		return fmt.Errorf("snapshot version is required")
	}

	payload, err := json.Marshal(snapshotRecord{
		AggregateID:   snap.AggregateID,
		AggregateType: snap.AggregateType,
		Version:       snap.Version,
		State:         json.RawMessage(snap.State),
		TakenAt:       snap.TakenAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		if existing := bucket.Get(snapshotKey(snap.AggregateID)); existing != nil {
			var record snapshotRecord
			if err := json.Unmarshal(existing, &record); err == nil && record.Version >= snap.Version {
				return nil
			}
		}
		return bucket.Put(snapshotKey(snap.AggregateID), payload)
	})
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *Store) LatestSnapshot(ctx context.Context, aggregateID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.db == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return storage.Snapshot{}, fmt.Errorf("aggregate id is required")
	}

	var snap storage.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		payload := bucket.Get(snapshotKey(aggregateID))
		if payload == nil {
			return storage.ErrNotFound
		}
		var record snapshotRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snap = storage.Snapshot{
			AggregateID:   record.AggregateID,
			AggregateType: record.AggregateType,
			Version:       record.Version,
			State:         []byte(record.State),
			TakenAt:       record.TakenAt,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, err
	}
	return snap, nil
}

// DeleteSnapshots implements storage.SnapshotStore.
func (s *Store) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return fmt.Errorf("aggregate id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		return bucket.Delete(snapshotKey(aggregateID))
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket)); err != nil {
			return fmt.Errorf("create snapshot bucket: %w", err)
		}
		return nil
	})
}

func snapshotKey(aggregateID string) []byte {
	return []byte(aggregateID)
}
