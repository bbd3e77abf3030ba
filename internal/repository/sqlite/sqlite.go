// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. Use ":memory:" for an in-memory database in tests.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
//
// Transitions are written as conditional UPDATEs and decided by
// RowsAffected, so the database is the only synchronization point.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/guildgate/internal/repository"
)

// compile-time check that *DB implements every repository interface
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/guildgate.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so tests pin the pool to one connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn adds a busy timeout to file databases so concurrent writers wait for
// the lock instead of failing with SQLITE_BUSY.
func dsn(dbPath string) string {
	if dbPath == ":memory:" || strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_pragma=busy_timeout(5000)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe to run on every start; later columns are
// added with addColumnIfNotExists so existing files upgrade in place.
func (db *DB) migrate() error {
	// Profiles: one row per signed-in identity. external_messaging_id is the
	// Discord user id and the sign-in upsert key.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id                      TEXT PRIMARY KEY,
			external_messaging_id   TEXT NOT NULL UNIQUE,
			username                TEXT NOT NULL DEFAULT '',
			avatar_url              TEXT NOT NULL DEFAULT '',
			display_name            TEXT NOT NULL DEFAULT '',
			in_game_name            TEXT NOT NULL DEFAULT '',
			bio                     TEXT NOT NULL DEFAULT '',
			role                    TEXT NOT NULL DEFAULT 'user',
			activated               INTEGER NOT NULL DEFAULT 0,
			activated_at            DATETIME,
			rejected_at             DATETIME,
			rejection_reason        TEXT NOT NULL DEFAULT '',
			activation_request      TEXT,
			activation_submitted_at DATETIME,
			version                 INTEGER NOT NULL DEFAULT 0,
			created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_pending
			ON profiles(activated, activation_submitted_at);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	// Staff review correlation, added after the first release.
	if err := db.addColumnIfNotExists("profiles", "review_message_id",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding review_message_id to profiles: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS store_items (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			price_usd  TEXT NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating store_items table: %w", err)
	}

	// Amounts are decimal strings; shopspring/decimal scans them back exactly.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS payment_requests (
			id               TEXT PRIMARY KEY,
			subject_id       TEXT NOT NULL REFERENCES profiles(id),
			item_id          TEXT NOT NULL,
			item_name        TEXT NOT NULL DEFAULT '',
			amount_local     TEXT NOT NULL,
			amount_usd       TEXT NOT NULL,
			payment_method   TEXT NOT NULL,
			sender_reference TEXT NOT NULL,
			proof_url        TEXT NOT NULL,
			notes            TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'pending',
			reviewed_by      TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			reviewed_at      DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_payment_requests_status ON payment_requests(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_payment_requests_subject ON payment_requests(subject_id);
	`)
	if err != nil {
		return fmt.Errorf("creating payment_requests table: %w", err)
	}

	// The primary key is the provider-issued id: the uniqueness constraint is
	// what collapses duplicate webhook deliveries.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS payment_transactions (
			id           TEXT PRIMARY KEY,
			subject_id   TEXT NOT NULL,
			item_id      TEXT NOT NULL,
			provider     TEXT NOT NULL,
			amount       TEXT NOT NULL,
			currency     TEXT NOT NULL,
			status       TEXT NOT NULL,
			raw_metadata TEXT NOT NULL DEFAULT '{}',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_payment_transactions_created_at ON payment_transactions(created_at);
		CREATE INDEX IF NOT EXISTS idx_payment_transactions_subject ON payment_transactions(subject_id);
	`)
	if err != nil {
		return fmt.Errorf("creating payment_transactions table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent; safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
