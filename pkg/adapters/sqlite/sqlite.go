// Package sqlite persists flows and sessions in a SQLite database using the
// pure-Go modernc driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS flows (
	id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	name TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	is_default INTEGER NOT NULL DEFAULT 0,
	document BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (bot_id, id)
);

CREATE INDEX IF NOT EXISTS idx_flows_default
ON flows(bot_id, is_default, is_active);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	bot_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	flow_id TEXT NOT NULL,
	document BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// Config configures the SQLite database.
type Config struct {
	DSN string
}

// DB is an open SQLite database holding both stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database and applies the schema.
func Open(cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Flows returns the flow store.
func (d *DB) Flows() *FlowStore { return &FlowStore{db: d.db, now: time.Now} }

// Sessions returns the session store.
func (d *DB) Sessions() *SessionStore { return &SessionStore{db: d.db} }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
