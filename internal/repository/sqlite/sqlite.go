// Package sqlite is the durable "remote synced" backend.
//
// Each account owns exactly one row in plant_documents holding its whole
// plant collection as JSON. Saves overwrite the row and then publish the new
// document on a realtime.Broker, which is what drives subscriptions. The same
// database also carries the accounts table used by the local directory.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without a C
// toolchain and ":memory:" databases make the tests self-contained.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sakif/pluk/internal/realtime"

	// registers the "sqlite" driver with database/sql
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and the change feed documents are published on.
type DB struct {
	conn      *sql.DB
	broker    realtime.Broker
	ownBroker bool
	logger    *slog.Logger
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/pluk.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database, used by the tests
//
// A nil broker gets an in-process realtime.Hub, which DB then owns and closes.
func New(dbPath string, broker realtime.Broker, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers (subscriptions loading their first document) run
	// alongside a save.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	db := &DB{conn: conn, broker: broker, logger: logger}
	if db.broker == nil {
		db.broker = realtime.NewHub()
		db.ownBroker = true
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the pool, and the broker when DB created it.
func (db *DB) Close() error {
	if db.ownBroker {
		_ = db.broker.Close()
	}
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate is idempotent: CREATE ... IF NOT EXISTS everywhere, plus
// addColumnIfNotExists for columns that arrived after the first release.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS plant_documents (
			account_id TEXT PRIMARY KEY,
			email      TEXT NOT NULL DEFAULT '',
			plants     TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_plant_documents_email ON plant_documents(email);
	`)
	if err != nil {
		return fmt.Errorf("creating plant_documents table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			email         TEXT PRIMARY KEY,
			id            TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// Security questions came with password recovery.
	if err := db.addColumnIfNotExists("accounts", "security_question",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding security_question to accounts: %w", err)
	}
	if err := db.addColumnIfNotExists("accounts", "security_answer_hash",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding security_answer_hash to accounts: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
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
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
