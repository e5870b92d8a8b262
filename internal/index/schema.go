// Package index keeps a SQLite cache of the records of the last good vault
// build, with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id            TEXT PRIMARY KEY,
	fname         TEXT NOT NULL UNIQUE,
	parent        TEXT NOT NULL DEFAULT '',
	children      TEXT NOT NULL DEFAULT '[]',
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	stub          INTEGER NOT NULL DEFAULT 0,
	schema_module TEXT NOT NULL DEFAULT '',
	schema_id     TEXT NOT NULL DEFAULT '',
	custom        TEXT NOT NULL DEFAULT '{}',
	created       TEXT NOT NULL DEFAULT '',
	updated       TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent);

CREATE TABLE IF NOT EXISTS schemas (
	module      TEXT NOT NULL,
	id          TEXT NOT NULL,
	parent      TEXT NOT NULL DEFAULT '',
	children    TEXT NOT NULL DEFAULT '[]',
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL DEFAULT '{}',
	custom      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (module, id)
);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
