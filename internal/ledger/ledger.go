// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records extraction runs and per-record outcomes in a
// SQLite database, so the identifiers that failed in a run can be listed
// and fed back into a resume.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pubmed-extract/internal/extract"
)

// Run states.
const (
	StateRunning     = "running"
	StateCompleted   = "completed"
	StateInterrupted = "interrupted"
	StateAborted     = "aborted"
)

// ErrRunNotFound is returned when no run matches an identifier.
var ErrRunNotFound = errors.New("run not found")

// Store manages the ledger database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path and creates the schema
// if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One writer; the runner records outcomes sequentially.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			template TEXT NOT NULL,
			output TEXT NOT NULL,
			model TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			state TEXT NOT NULL,
			extracted INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			api_errors INTEGER NOT NULL DEFAULT 0,
			parse_errors INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			identifier TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_status ON outcomes(run_id, status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RunInfo describes one run.
type RunInfo struct {
	ID         string
	Command    string
	Template   string
	Output     string
	Model      string
	StartedAt  time.Time
	FinishedAt *time.Time
	State      string
	Summary    extract.BatchSummary
	Error      string
}

// Run is an open run. It implements extract.Recorder.
type Run struct {
	store *Store
	ID    string
}

// BeginRun inserts a run in the running state and returns its handle. The
// ID, StartedAt and State fields of info are assigned here.
func (s *Store) BeginRun(ctx context.Context, info RunInfo) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, template, output, model, started_at, state) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, info.Command, info.Template, info.Output, info.Model, formatTime(time.Now()), StateRunning)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return &Run{store: s, ID: id}, nil
}

// Record stores one outcome.
func (r *Run) Record(ctx context.Context, o extract.Outcome) error {
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, identifier, status, attempts, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, o.Identifier, string(o.Status), o.Attempts, o.Duration.Milliseconds(), errText)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", o.Identifier, err)
	}
	return nil
}

// Finish stores the summary and final state of the run.
func (r *Run) Finish(ctx context.Context, summary extract.BatchSummary, runErr error) error {
	state := StateCompleted
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
		state = StateAborted
		if errors.Is(runErr, context.Canceled) {
			state = StateInterrupted
		}
	}
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, state = ?, extracted = ?, skipped = ?, api_errors = ?, parse_errors = ?, error = ? WHERE id = ?`,
		formatTime(time.Now()), state, summary.Extracted, summary.Skipped, summary.APIErrors, summary.ParseErrors, errText, r.ID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.ID, err)
	}
	return nil
}

// Runs lists runs, most recent first. limit <= 0 lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `SELECT id, command, template, output, COALESCE(model, ''), started_at, finished_at, state,
		extracted, skipped, api_errors, parse_errors, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var ri RunInfo
		var started string
		var finished sql.NullString
		if err := rows.Scan(&ri.ID, &ri.Command, &ri.Template, &ri.Output, &ri.Model, &started, &finished, &ri.State,
			&ri.Summary.Extracted, &ri.Summary.Skipped, &ri.Summary.APIErrors, &ri.Summary.ParseErrors, &ri.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		ri.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			ri.FinishedAt = &t
		}
		runs = append(runs, ri)
	}
	return runs, rows.Err()
}

// ResolveRun expands a unique run ID prefix to the full ID.
func (s *Store) ResolveRun(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("resolving run %s: %w", prefix, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scanning run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%s: %w", prefix, ErrRunNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run prefix %s is ambiguous", prefix)
	}
}

// Failed lists the identifiers whose extraction failed in the run, in the
// order they were processed, without duplicates.
func (s *Store) Failed(ctx context.Context, runID string) ([]string, error) {
	id, err := s.ResolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier FROM outcomes WHERE run_id = ? AND status IN (?, ?) ORDER BY rowid`,
		id, string(extract.StatusAPIError), string(extract.StatusParseError))
	if err != nil {
		return nil, fmt.Errorf("querying failed outcomes: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	ids := []string{}
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		if _, dup := seen[ident]; dup {
			continue
		}
		seen[ident] = struct{}{}
		ids = append(ids, ident)
	}
	return ids, rows.Err()
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
