// Package journal keeps an optional sqlite record of enriched events
// per project directory. The relay tees into it through a buffered
// writer; nothing on the streaming path ever reads it back.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type Entry struct {
	ID         int64          `json:"id"`
	Directory  string         `json:"directory"`
	Type       string         `json:"type"`
	IsSubagent bool           `json:"is_subagent"`
	Payload    map[string]any `json:"payload"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  directory TEXT NOT NULL,
  event_type TEXT NOT NULL DEFAULT '',
  is_subagent INTEGER NOT NULL DEFAULT 0,
  payload_json TEXT NOT NULL,
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_directory_id ON events(directory, id);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	payloadJSON, _ := json.Marshal(e.Payload)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO events(directory, event_type, is_subagent, payload_json, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Directory, e.Type, boolToInt(e.IsSubagent), string(payloadJSON),
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// List returns the most recent entries for a directory, newest first.
func (s *Store) List(ctx context.Context, directory string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, directory, event_type, is_subagent, payload_json, recorded_at
		 FROM events WHERE directory=?
		 ORDER BY id DESC LIMIT ?`,
		directory, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var subagent int
		var payloadJSON, ts string
		if err := rows.Scan(&e.ID, &e.Directory, &e.Type, &subagent, &payloadJSON, &ts); err != nil {
			return nil, err
		}
		e.IsSubagent = subagent != 0
		_ = json.Unmarshal([]byte(payloadJSON), &e.Payload)
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
