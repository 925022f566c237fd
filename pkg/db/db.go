// Package db opens the device's SQLite file and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// migrations are applied in order; the slice index plus one is the schema
// version recorded in PRAGMA user_version. Only append.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS persistent_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS remote_fields (
		field TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		reason TEXT,
		lat REAL,
		lon REAL,
		started_at DATETIME,
		ended_at DATETIME,
		end_reason TEXT,
		max_threshold INTEGER DEFAULT 0,
		escalated BOOLEAN DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS incidents_started ON incidents(started_at);`,
	`CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		destination TEXT,
		origin_lat REAL,
		origin_lon REAL,
		steps INTEGER,
		completed INTEGER DEFAULT 0,
		outcome TEXT,
		started_at DATETIME,
		ended_at DATETIME
	);`,
	`ALTER TABLE incidents ADD COLUMN helper TEXT;`,
}

// Init opens the database at path, creating its directory, and migrates
// it to the latest schema.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// One connection: the pragmas below are per connection, and SQLite
	// serializes writers anyway.
	conn.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=30000"} {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	d := &DB{conn}
	if err := d.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

// Version returns the applied schema version.
func (d *DB) Version() (int, error) {
	var v int
	err := d.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// PruneCache removes cache entries older than olderThan.
func (d *DB) PruneCache(olderThan time.Duration) error {
	// CURRENT_TIMESTAMP format, UTC.
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.DateTime)
	_, err := d.Exec("DELETE FROM cache WHERE created_at < ?", cutoff)
	return err
}

func (d *DB) migrate(ctx context.Context) error {
	from, err := d.Version()
	if err != nil {
		return err
	}
	for v := from; v < len(migrations); v++ {
		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schema v%d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schema v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
