package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// DatabaseDestination persists events to a local SQLite database via the
// pure-Go modernc.org/sqlite driver.
type DatabaseDestination struct {
	db *sql.DB
}

// NewDatabaseDestination opens (creating if absent) a SQLite database at
// path and ensures the events table exists.
func NewDatabaseDestination(path string) (*DatabaseDestination, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		source TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		correlation_id TEXT,
		payload TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit_events table: %w", err)
	}
	return &DatabaseDestination{db: db}, nil
}

func (d *DatabaseDestination) Write(ctx context.Context, batch []Event) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO audit_events
		(id, timestamp, event_type, severity, source, action, outcome, correlation_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling audit event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
			e.EventType, string(e.Severity), e.Source, e.Action, string(e.Outcome), e.CorrelationID, string(payload)); err != nil {
			return fmt.Errorf("inserting audit event: %w", err)
		}
	}
	return tx.Commit()
}

func (d *DatabaseDestination) Close() error { return d.db.Close() }
