// Package crm parses CRM command flags and launches the CRM runtime.
package crm

import (
	"context"
	"flag"

	entrypoint "github.com/aicsynergy/platform/internal/platform/cmd"
	crmserver "github.com/aicsynergy/platform/internal/services/crm/app"
)

// Config holds CRM command configuration.
type Config struct {
	DBPath           string `env:"SYNERGY_CRM_DB_PATH" envDefault:"data/crm.db"`
	SnapshotDBPath   string `env:"SYNERGY_CRM_SNAPSHOT_DB_PATH"`
	SnapshotInterval uint64 `env:"SYNERGY_CRM_SNAPSHOT_INTERVAL" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The CRM SQLite database path")
	fs.StringVar(&cfg.SnapshotDBPath, "snapshot-db-path", cfg.SnapshotDBPath, "Optional bbolt snapshot cache path")
	fs.Uint64Var(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "Events between aggregate snapshots")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the CRM runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCRM, func(context.Context) error {
		return crmserver.Run(ctx, crmserver.RuntimeConfig{
			DBPath:           cfg.DBPath,
			SnapshotDBPath:   cfg.SnapshotDBPath,
			SnapshotInterval: cfg.SnapshotInterval,
		})
	})
}
