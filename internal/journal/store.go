// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal persists one record per batch run in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/unobtrude/pkg/types"
)

const defaultLimit = 20

// Store manages the run journal database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection. Close on a nil Store is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			uploaded INTEGER NOT NULL,
			converted INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			content_types TEXT,
			status TEXT NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends run to the journal. Record on a nil Store does nothing, so
// callers can leave the journal disabled.
func (s *Store) Record(ctx context.Context, run types.Run) error {
	if s == nil {
		return nil
	}
	var contentTypes sql.NullString
	if len(run.ContentTypes) > 0 {
		data, err := json.Marshal(run.ContentTypes)
		if err != nil {
			return fmt.Errorf("encoding content types of run %s: %w", run.ID, err)
		}
		contentTypes = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, duration_ms, uploaded, converted, skipped, content_types, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Source),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Milliseconds(),
		run.Uploaded,
		run.Converted,
		run.Skipped,
		contentTypes,
		string(run.Status),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. A limit of zero or less
// uses the default of 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.query(ctx, limit)
}

func (s *Store) query(ctx context.Context, limit int) ([]types.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, duration_ms, uploaded, converted, skipped, content_types, status, error
		 FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		var (
			r            types.Run
			source       string
			status       string
			startedAt    string
			durationMS   int64
			contentTypes sql.NullString
			errText      sql.NullString
		)
		if err := rows.Scan(&r.ID, &source, &startedAt, &durationMS,
			&r.Uploaded, &r.Converted, &r.Skipped, &contentTypes, &status, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Source = types.RunSource(source)
		r.Status = types.RunStatus(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = errText.String
		if contentTypes.Valid {
			if err := json.Unmarshal([]byte(contentTypes.String), &r.ContentTypes); err != nil {
				return nil, fmt.Errorf("decoding content types of run %s: %w", r.ID, err)
			}
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parsing start time of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
