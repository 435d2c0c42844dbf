package db

import "embed"

// MigrationFS embeds the SQL migration files in internal/db/migrations,
// consumed by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
