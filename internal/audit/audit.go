// Package audit records a session-event log (one row per dispatched
// command and its outcome) to a SQLite database, for post-hoc inspection
// of what an emulated token was asked to do.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one logged dispatch outcome.
type Event struct {
	TS      int64
	Serial  string
	MajorFn byte
	Status  byte
	Detail  string
}

// Log is a SQLite-backed append-only event log.
type Log struct {
	db *sql.DB
}

// Open opens/creates the audit database at dsn and ensures its schema.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping %s: %w", dsn, err)
	}

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: set %s: %w", p, err)
		}
	}

	schema := `
CREATE TABLE IF NOT EXISTS events (
  id      INTEGER PRIMARY KEY AUTOINCREMENT,
  ts      INTEGER NOT NULL,
  serial  TEXT    NOT NULL,
  majorFn INTEGER NOT NULL,
  status  INTEGER NOT NULL,
  detail  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_serial_idx ON events(serial);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one event.
func (l *Log) Record(ctx context.Context, ev Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events(ts, serial, majorFn, status, detail) VALUES(?, ?, ?, ?, ?)`,
		ev.TS, ev.Serial, ev.MajorFn, ev.Status, ev.Detail)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// Recent returns the most recent n events for serial, newest first.
func (l *Log) Recent(ctx context.Context, serial string, n int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ts, serial, majorFn, status, detail FROM events WHERE serial = ? ORDER BY id DESC LIMIT ?`,
		serial, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.TS, &ev.Serial, &ev.MajorFn, &ev.Status, &ev.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Now is the default timestamp source (Unix seconds); callers that need a
// deterministic clock for tests should build Event.TS themselves and call
// Record directly rather than relying on this.
func Now() int64 {
	return time.Now().Unix()
}
