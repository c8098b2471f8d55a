// Package sqlitesink persists session event records to a SQLite database.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vango-go/vai-places/pkg/voice/eventlog"
)

const timeLayout = time.RFC3339Nano

type Sink struct {
	db *sql.DB
}

var _ eventlog.Sink = (*Sink)(nil)

// Open creates the database file (and its directory) if needed and ensures
// the schema.
func Open(ctx context.Context, dbPath string) (*Sink, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Sink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_events (
  session_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  recorded_at TEXT NOT NULL,
  type TEXT NOT NULL,
  direction TEXT NOT NULL,
  payload TEXT,
  PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_session_events_type ON session_events (session_id, type);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create session_events table: %w", err)
	}
	return nil
}

func (s *Sink) Append(ctx context.Context, r eventlog.Record) error {
	var payload any
	if r.Payload != nil {
		b, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = string(b)
	}
	const stmt = `
INSERT INTO session_events (session_id, seq, recorded_at, type, direction, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, seq) DO NOTHING;
`
	_, err := s.db.ExecContext(ctx, stmt,
		r.SessionID,
		r.Seq,
		r.Timestamp.UTC().Format(timeLayout),
		r.Type,
		string(r.Direction),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// Events reads back a session's records in sequence order.
func (s *Sink) Events(ctx context.Context, sessionID string) ([]eventlog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, recorded_at, type, direction, payload
FROM session_events
WHERE session_id = ?
ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var out []eventlog.Record
	for rows.Next() {
		var (
			r         eventlog.Record
			at        string
			direction string
			payload   sql.NullString
		)
		if err := rows.Scan(&r.Seq, &at, &r.Type, &direction, &payload); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		r.SessionID = sessionID
		r.Direction = eventlog.Direction(direction)
		if r.Timestamp, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &r.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	return s.db.Close()
}
