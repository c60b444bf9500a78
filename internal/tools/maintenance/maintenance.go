// Package maintenance provides offline repair utilities for the CRM event
// store: projection rebuilds, snapshot invalidation, and stream reports.
// It runs against the database files directly and is not meant to execute
// while the service is serving writes.
package maintenance

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/aicsynergy/platform/internal/services/crm/app"
	"github.com/aicsynergy/platform/internal/services/crm/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath             string
	Timeout            time.Duration
	RebuildProjection  string
	InvalidateSnapshot string
	StreamReport       bool
	JSONOutput         bool
}

type envConfig struct {
	DBPath  string        `env:"SYNERGY_CRM_DB_PATH"`
	Timeout time.Duration `env:"SYNERGY_CRM_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:  envCfg.DBPath,
		Timeout: envCfg.Timeout,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "crm.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the CRM sqlite database (default: SYNERGY_CRM_DB_PATH or data/crm.db)")
	fs.StringVar(&cfg.RebuildProjection, "rebuild-projection", "", "projection to rebuild from the event streams (ticket_queue|invoice_summaries|client_roster)")
	fs.StringVar(&cfg.InvalidateSnapshot, "invalidate-snapshot", "", "aggregate ID whose snapshots are dropped, forcing a full replay on next load")
	fs.BoolVar(&cfg.StreamReport, "stream-report", false, "print every aggregate stream and its latest version")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output the stream report as JSON")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type streamReportRow struct {
	AggregateID string `json:"aggregate_id"`
	Version     uint64 `json:"version"`
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.RebuildProjection == "" && cfg.InvalidateSnapshot == "" && !cfg.StreamReport {
		return fmt.Errorf("nothing to do: pass -rebuild-projection, -invalidate-snapshot, or -stream-report")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.InvalidateSnapshot != "" {
		aggregateID := strings.TrimSpace(cfg.InvalidateSnapshot)
		if err := store.DeleteSnapshots(ctx, aggregateID); err != nil {
			return fmt.Errorf("invalidate snapshot: %w", err)
		}
		fmt.Fprintf(out, "snapshots dropped for aggregate %s\n", aggregateID)
	}

	if cfg.RebuildProjection != "" {
		if err := rebuild(ctx, store, cfg.RebuildProjection, out); err != nil {
			return err
		}
	}

	if cfg.StreamReport {
		if err := streamReport(ctx, store, cfg.JSONOutput, out); err != nil {
			return err
		}
	}
	return nil
}

func rebuild(ctx context.Context, store *sqlite.Store, name string, out io.Writer) error {
	service, err := app.New(app.Stores{
		Events:           store,
		Snapshots:        store,
		Watermarks:       store,
		TicketQueue:      store,
		InvoiceSummaries: store,
		ClientRoster:     store,
	})
	if err != nil {
		return err
	}
	if err := service.RebuildProjection(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "projection %s rebuilt\n", name)
	return nil
}

func streamReport(ctx context.Context, store *sqlite.Store, jsonOutput bool, out io.Writer) error {
	aggregateIDs, err := store.ListAggregates(ctx, "")
	if err != nil {
		return err
	}

	rows := make([]streamReportRow, 0, len(aggregateIDs))
	for _, aggregateID := range aggregateIDs {
		version, err := store.LatestVersion(ctx, aggregateID)
		if err != nil {
			return err
		}
		rows = append(rows, streamReportRow{AggregateID: aggregateID, Version: version})
	}

	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%s\t%d\n", row.AggregateID, row.Version)
	}
	fmt.Fprintf(out, "%d streams\n", len(rows))
	return nil
}
