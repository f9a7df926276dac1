// Package storage owns the SQLite connection and schema migrations.
// WAL mode, busy timeout, incremental PRAGMA user_version migrations, no ORM.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const SchemaVersion = 1

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the database at path and applies pending migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// Conn exposes the underlying connection to the store layer.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes the connection.
func (db *DB) Close() error { return db.conn.Close() }

// Ping verifies the connection is alive. Used by the health endpoint.
func (db *DB) Ping() error { return db.conn.Ping() }

func (db *DB) migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			if err := applySchemaV1(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func applySchemaV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS finance_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			merchant TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_finance_user_created ON finance_entries(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			due_hint TEXT NOT NULL DEFAULT 'none',
			status TEXT NOT NULL DEFAULT 'open',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user_status ON todos(user_id, status)`,
		`CREATE TABLE IF NOT EXISTS links (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS crypto_intents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity REAL,
			unit_price REAL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS handshake_events (
			id TEXT PRIMARY KEY,
			signal_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			module TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_handshakes_user_created ON handshake_events(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS profile_kv (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_kind ON memories(user_id, kind)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
