package db

import "embed"

// MigrationFS holds the audit store schema, applied by cmd/migrate or the server on startup.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
