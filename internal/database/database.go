// Package database is the SQLite persistence layer for videos, comments and
// user messages.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite handle. Safe for concurrent use; SQLite serializes
// writers internally, the busy timeout keeps them from failing fast.
type DB struct {
	db *sql.DB
}

// Connect opens (and if needed creates) the database file and applies the
// schema. Pass ":memory:" for an ephemeral database in tests.
func Connect(ctx context.Context, file string) (*DB, error) {
	dsn := file + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_loc=UTC"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", file, err)
	}
	if file == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %q: %w", file, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("Database opened", "file", file)
	return &DB{db: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks connectivity, for health probes.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
