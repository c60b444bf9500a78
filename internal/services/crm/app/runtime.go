package app

import (
	"context"
	"log"

	bboltstore "github.com/aicsynergy/platform/internal/services/crm/storage/bbolt"
	"github.com/aicsynergy/platform/internal/services/crm/storage/sqlite"
)

// RuntimeConfig holds the process-level settings for the CRM service.
type RuntimeConfig struct {
	// DBPath locates the SQLite database holding events, watermarks, and
	// read models.
	DBPath string
	// SnapshotDBPath locates the bbolt snapshot cache. Empty means
	// snapshots live in the SQLite database instead.
	SnapshotDBPath string
	// SnapshotInterval is how many events elapse between snapshots.
	SnapshotInterval uint64
}

// Run starts the CRM service and blocks until ctx is cancelled. On shutdown
// it drains in-flight projection work before closing the stores.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	stores := Stores{
		Events:           store,
		Snapshots:        store,
		Watermarks:       store,
		TicketQueue:      store,
		InvoiceSummaries: store,
		ClientRoster:     store,
	}

	if cfg.SnapshotDBPath != "" {
		snapshots, err := bboltstore.Open(cfg.SnapshotDBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := snapshots.Close(); err != nil {
				log.Printf("close snapshot store: %v", err)
			}
		}()
		stores.Snapshots = snapshots
	}

	var opts []Option
	if cfg.SnapshotInterval > 0 {
		opts = append(opts, WithSnapshotInterval(cfg.SnapshotInterval))
	}
	service, err := New(stores, opts...)
	if err != nil {
		return err
	}

	log.Printf("crm service ready, db=%s", cfg.DBPath)
	<-ctx.Done()
	service.DrainProjections()
	return nil
}
