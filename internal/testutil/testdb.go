// Package testutil provides test helpers: an in-memory database with the
// application schema, entity fixtures, and a deterministic mock clock.
package testutil

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/lendarr/lendarr/internal/db"
)

// testDBCounter gives each test database a unique shared-cache name so
// repositories opened by different tests never see each other's data.
var testDBCounter atomic.Int64

// NewTestDB creates an in-memory SQLite database with the Lendarr schema.
// Returns a repository whose handle should be closed by the caller.
func NewTestDB() (*db.Repository, error) {
	// A named shared-cache database lets every connection in the pool see
	// the same in-memory database, so code that queries the *sql.DB while
	// another connection holds a transaction (as production does) works.
	// The pragmas are in the DSN so each pooled connection applies them.
	dsn := fmt.Sprintf(
		"file:testdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		testDBCounter.Add(1),
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// Match production's pool size; keep connections idle indefinitely so
	// the shared in-memory database is never dropped mid-test.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := initializeSchema(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &db.Repository{DB: conn}, nil
}

// initializeSchema creates all required tables for testing. Pragmas are
// applied per-connection via the DSN, not here.
func initializeSchema(conn *sql.DB) error {
	statements := []string{
		`CREATE TABLE borrowers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			tier TEXT NOT NULL DEFAULT 'standard',
			api_key_hash TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			isbn TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'available',
			hold_until TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE checkouts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL REFERENCES books(id),
			borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
			status TEXT NOT NULL DEFAULT 'active',
			checked_out_at TEXT NOT NULL,
			due_date TEXT NOT NULL,
			returned_at TEXT
		)`,
		`CREATE UNIQUE INDEX idx_checkouts_one_active_per_book
			ON checkouts(book_id) WHERE status != 'returned'`,
		`CREATE TABLE waitlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL REFERENCES books(id),
			borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
			status TEXT NOT NULL DEFAULT 'waiting',
			position INTEGER NOT NULL,
			is_priority INTEGER NOT NULL DEFAULT 0,
			notified_at TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			book_id INTEGER REFERENCES books(id),
			read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE lifecycle_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			actor TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
