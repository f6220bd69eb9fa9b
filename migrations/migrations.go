// Package migrations embeds the SQL schema for every backend dialect.
package migrations

import "embed"

// FS holds one directory of goose migrations per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql sqlite_system/*.sql
var FS embed.FS

// Directories inside FS.
const (
	Postgres     = "postgres"
	SQLite       = "sqlite"
	SQLiteSystem = "sqlite_system"
)
