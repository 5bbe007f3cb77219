// Package audit is a write-only record of what the coordinator did:
// every layer_executed, error, and finished observation gets one row.
// It is adapted from the teacher's persistence.WAL, but deliberately
// drops WAL.Recover — this system's Non-goals forbid resuming an
// in-flight build from disk, so nothing ever reads this table back to
// reconstruct scheduler state. It exists purely for after-the-fact
// inspection.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one append-only audit row.
type Record struct {
	RunID       string
	LayerNumber uint32
	Event       string // "layer_executed" | "error" | "finished"
	Timestamp   time.Time
	Detail      string
}

// Log is a sqlite-backed append-only sink. Safe for concurrent Append
// calls; database/sql pools its own connections.
type Log struct {
	db *sql.DB
}

// Open creates (if absent) the audit table at path and returns a Log
// ready for Append.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	layer_number INTEGER NOT NULL,
	event        TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	detail       TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes one audit row synchronously on the caller's goroutine.
// The scheduler calls it directly: from the consumer loop after each
// executed layer and at the end of a run, and from publishError.
func (l *Log) Append(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, layer_number, event, timestamp, detail) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.LayerNumber, rec.Event, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Detail,
	)
	return err
}

// Close releases the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }
