package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mindmesh/pulse/internal/graph"
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	tick   INTEGER NOT NULL,
	seq    INTEGER NOT NULL,
	type   TEXT    NOT NULL,
	at     TEXT    NOT NULL,
	fields TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

CREATE TABLE IF NOT EXISTS snapshots (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	graph TEXT    NOT NULL,
	tick  INTEGER NOT NULL,
	taken TEXT    NOT NULL,
	state TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_graph ON snapshots(graph);
`

// SQLiteSink persists events to a SQLite database for offline analysis.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteSink opens (or creates) the event database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init event schema: %w", err)
	}

	insert, err := db.Prepare(
		"INSERT INTO events (tick, seq, type, at, fields) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLiteSink{db: db, insert: insert}, nil
}

// Emit inserts one event row.
func (s *SQLiteSink) Emit(ev Event) error {
	var fields any
	if ev.Fields != nil {
		data, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		fields = string(data)
	}
	if _, err := s.insert.Exec(ev.Tick, ev.Seq, ev.Type,
		ev.At.Format(time.RFC3339Nano), fields); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// WriteSnapshot exports a graph snapshot as one JSON document row, keyed by
// graph name and tick. Meant for shutdown exports and offline inspection,
// not for the hot path.
func (s *SQLiteSink) WriteSnapshot(graphName string, snap *graph.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO snapshots (graph, tick, taken, state) VALUES (?, ?, ?, ?)",
		graphName, snap.Tick, snap.TakenAt.Format(time.RFC3339Nano), string(state))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot loads the most recently stored snapshot for a graph.
func (s *SQLiteSink) LatestSnapshot(graphName string) (*graph.Snapshot, error) {
	var state string
	err := s.db.QueryRow(
		"SELECT state FROM snapshots WHERE graph = ? ORDER BY id DESC LIMIT 1",
		graphName).Scan(&state)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap graph.Snapshot
	if err := json.Unmarshal([]byte(state), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// CountByType returns how many stored events carry the given type.
func (s *SQLiteSink) CountByType(eventType string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE type = ?", eventType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the prepared statement and database handle.
func (s *SQLiteSink) Close() error {
	if s.insert != nil {
		_ = s.insert.Close()
	}
	return s.db.Close()
}
