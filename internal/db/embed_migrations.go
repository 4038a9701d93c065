package db

import "embed"

// MigrationFS embeds the SQL migrations in internal/db/migrations for the migrate runner.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
