package store

import (
	"database/sql"
	"fmt"
	"log"
)

// schemaVersion is bumped whenever the table shapes change. There is no
// field-level upgrade path: the remote API is the source of truth, so an
// upgrade drops all three collections and the next sync reseeds them.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    taxon_id INTEGER,
    user_id INTEGER NOT NULL,
    observed_at INTEGER,
    observed_at_verbatim TEXT,
    updated_at INTEGER NOT NULL,
    description TEXT,
    uri TEXT NOT NULL,
    uuid TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS taxa (
    id INTEGER PRIMARY KEY,
    scientific_name TEXT NOT NULL,
    common_name TEXT
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    login TEXT NOT NULL,
    name TEXT
);

CREATE INDEX IF NOT EXISTS idx_obs_updated_at ON observations(updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_login ON users(login);
CREATE INDEX IF NOT EXISTS idx_taxa_scientific_name ON taxa(scientific_name);
`

// Migrate establishes the schema at the current version. It is idempotent; on
// a version mismatch it destructively recreates all three collections.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_info table: %w", err)
	}

	current, err := s.currentVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if current == schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if current != 0 {
		log.Printf("store: schema version %d -> %d, dropping collections for reseed", current, schemaVersion)
		if _, err := tx.Exec(`
			DROP TABLE IF EXISTS observations;
			DROP TABLE IF EXISTS taxa;
			DROP TABLE IF EXISTS users;
		`); err != nil {
			return fmt.Errorf("drop collections: %w", err)
		}
	}

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM schema_info"); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_info (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	log.Printf("store: schema at version %d", schemaVersion)
	return nil
}

func (s *Store) currentVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_info").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
