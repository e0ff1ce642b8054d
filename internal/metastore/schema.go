package metastore

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// tables holding fixture data, in load order
var tables = []string{"namespace_map", "compiled_class", "class_super", "compiled_member", "xref_data"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS namespace_map (
		namespace      TEXT PRIMARY KEY,
		xref_namespace TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS compiled_class (
		name  TEXT PRIMARY KEY,
		super TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS class_super (
		class    TEXT NOT NULL,
		super    TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (class, super)
	)`,
	`CREATE TABLE IF NOT EXISTS compiled_member (
		parent      TEXT NOT NULL,
		name        TEXT NOT NULL,
		origin      TEXT NOT NULL,
		member_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_compiled_member_parent ON compiled_member(parent)`,
	`CREATE TABLE IF NOT EXISTS xref_data (
		namespace         TEXT NOT NULL,
		item_type         TEXT NOT NULL DEFAULT 'CLS',
		item_key1         TEXT NOT NULL,
		item_key2         TEXT NOT NULL,
		called_by_command TEXT NOT NULL DEFAULT '',
		called_by_key1    TEXT NOT NULL,
		called_by_key2    TEXT NOT NULL DEFAULT '',
		line_number       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_xref_item ON xref_data(namespace, item_key1, item_key2)`,
}

// initializeSchema creates missing tables and records the schema version.
func (s *Store) initializeSchema() error {
	return s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}

		var version int
		err := tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
				return fmt.Errorf("failed to set schema version: %w", err)
			}
			s.logger.Info("Metastore schema initialized", "version", currentSchemaVersion, "path", s.path)
		case err != nil:
			return fmt.Errorf("failed to read schema version: %w", err)
		case version != currentSchemaVersion:
			return fmt.Errorf("unsupported metastore schema version %d (want %d)", version, currentSchemaVersion)
		}
		return nil
	})
}
