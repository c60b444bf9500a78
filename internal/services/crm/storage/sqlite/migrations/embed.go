package migrations

import "embed"

// FS contains embedded SQLite migrations for CRM storage.
//
//go:embed *.sql
var FS embed.FS
