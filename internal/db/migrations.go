package db

import (
	"fmt"

	"github.com/matthewgall/shelfscrape/internal/cache"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{version: 1, name: "external_cache", sql: cache.Schema},
	{version: 2, name: "extractions", sql: extractionsTable},
	{version: 3, name: "extractions_created_at_index", sql: extractionsCreatedAtIndex},
}

func validateMigrations() error {
	if len(migrations) == 0 {
		return fmt.Errorf("no migrations defined")
	}

	seenVersions := make(map[int]bool)
	seenNames := make(map[string]bool)
	prevVersion := 0
	for _, migration := range migrations {
		if migration.version <= 0 {
			return fmt.Errorf("invalid migration version %d", migration.version)
		}
		if seenVersions[migration.version] {
			return fmt.Errorf("duplicate migration version %d", migration.version)
		}
		if seenNames[migration.name] {
			return fmt.Errorf("duplicate migration name %s", migration.name)
		}
		if migration.version <= prevVersion {
			return fmt.Errorf("migration version %d out of order", migration.version)
		}
		seenVersions[migration.version] = true
		seenNames[migration.name] = true
		prevVersion = migration.version
	}

	return nil
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const extractionsTable = `
CREATE TABLE IF NOT EXISTS extractions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('succeeded', 'not_found', 'malformed', 'failed')),
	product_count INTEGER NOT NULL DEFAULT 0,
	top_level_keys TEXT NOT NULL DEFAULT '[]',
	artifact_location TEXT,
	output_location TEXT,
	error_message TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const extractionsCreatedAtIndex = `
CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at);
CREATE INDEX IF NOT EXISTS idx_extractions_source ON extractions(source);
`
