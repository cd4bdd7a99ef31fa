// Package store persists session transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/command"
)

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// StateRunning marks a session that has started but not recorded an outcome.
const StateRunning = "running"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	budget INTEGER NOT NULL,
	state TEXT NOT NULL,
	iterations INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

CREATE TABLE IF NOT EXISTS entries (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	iteration INTEGER NOT NULL,
	kind TEXT NOT NULL,
	command TEXT NOT NULL,
	args TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	raw TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	output TEXT,
	error TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (session_id, iteration)
);
`

// Store is a SQLite-backed agentloop.Recorder.
type Store struct {
	db *sql.DB
}

var _ agentloop.Recorder = (*Store)(nil)

// SessionSummary is one row of the sessions table.
type SessionSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Goal       string    `json:"goal" yaml:"goal"`
	Budget     int       `json:"budget" yaml:"budget"`
	State      string    `json:"state" yaml:"state"`
	Iterations int       `json:"iterations" yaml:"iterations"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive and shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a running session.
func (s *Store) RecordStart(ctx context.Context, sessionID, goal string, budget int, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, goal, budget, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, goal, budget, StateRunning, formatTime(started))
	if err != nil {
		return fmt.Errorf("record start: %w", err)
	}
	return nil
}

// RecordEntry stores one history entry and advances the session's iteration
// count.
func (s *Store) RecordEntry(ctx context.Context, sessionID string, e agentloop.Entry) error {
	args, err := json.Marshal(e.Decision.Args)
	if err != nil {
		return fmt.Errorf("record entry: args: %w", err)
	}
	var output sql.NullString
	if e.Result.Output != nil {
		data, err := json.Marshal(e.Result.Output)
		if err != nil {
			return fmt.Errorf("record entry: output: %w", err)
		}
		output = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries
			(session_id, iteration, kind, command, args, rationale, raw, status, output, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, e.Iteration, string(e.Kind), e.Decision.Command, string(args), e.Decision.Rationale,
		e.Decision.Raw, string(e.Result.Status), output, e.Result.Error, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET iterations = MAX(iterations, ?) WHERE id = ?`, e.Iteration, sessionID); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	return tx.Commit()
}

// RecordOutcome stores the terminal state. A session recorded without a
// prior RecordStart is inserted.
func (s *Store) RecordOutcome(ctx context.Context, o *agentloop.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, goal, budget, state, iterations, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			iterations = excluded.iterations,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		o.SessionID, o.Goal, o.Budget, string(o.State), o.Iterations, o.Error,
		formatTime(o.StartedAt), formatTime(o.FinishedAt))
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Sessions lists sessions, most recent first. A non-positive limit lists
// all of them.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, budget, state, iterations, error, started_at, finished_at
		FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		sum, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Session loads a session with its full history as an Outcome. A session
// still running reports State "running".
func (s *Store) Session(ctx context.Context, id string) (*agentloop.Outcome, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, goal, budget, state, iterations, error, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	sum, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	entries, err := s.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &agentloop.Outcome{
		SessionID:  sum.ID,
		Goal:       sum.Goal,
		Budget:     sum.Budget,
		State:      agentloop.State(sum.State),
		Iterations: sum.Iterations,
		History:    entries,
		Error:      sum.Error,
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
	}, nil
}

// Entries returns the history of a session in iteration order.
func (s *Store) Entries(ctx context.Context, sessionID string) ([]agentloop.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, kind, command, args, rationale, raw, status, output, error, recorded_at
		FROM entries WHERE session_id = ? ORDER BY iteration`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var out []agentloop.Entry
	for rows.Next() {
		var (
			e                      agentloop.Entry
			kind, status, recorded string
			args                   string
			output                 sql.NullString
		)
		if err := rows.Scan(&e.Iteration, &kind, &e.Decision.Command, &args, &e.Decision.Rationale,
			&e.Decision.Raw, &status, &output, &e.Result.Error, &recorded); err != nil {
			return nil, fmt.Errorf("load entries: %w", err)
		}
		e.Kind = agentloop.EntryKind(kind)
		e.Result.Status = command.Status(status)
		if e.Decision.Args, err = command.ParseArgs(json.RawMessage(args)); err != nil {
			return nil, fmt.Errorf("load entries: %w", err)
		}
		if output.Valid {
			if err := json.Unmarshal([]byte(output.String), &e.Result.Output); err != nil {
				return nil, fmt.Errorf("load entries: output: %w", err)
			}
		}
		if e.Timestamp, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionSummary, error) {
	var (
		sum      SessionSummary
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&sum.ID, &sum.Goal, &sum.Budget, &sum.State, &sum.Iterations, &sum.Error, &started, &finished); err != nil {
		return SessionSummary{}, err
	}
	var err error
	if sum.StartedAt, err = parseTime(started); err != nil {
		return SessionSummary{}, err
	}
	if finished.Valid {
		if sum.FinishedAt, err = parseTime(finished.String); err != nil {
			return SessionSummary{}, err
		}
	}
	return sum, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
