package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of the redactor. Only end-of-run totals are kept.
type Run struct {
	ID             string
	InputPath      string
	OutputPath     string
	Keyword        string
	CaseSensitive  bool
	MinConfidence  int
	Frames         int
	RedactedFrames int
	Boxes          int
	Status         string
	Error          string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Store manages the PostgreSQL connection holding run history.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the run table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS redaction_runs (
			id UUID PRIMARY KEY,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			keyword TEXT NOT NULL,
			case_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
			min_confidence INT NOT NULL DEFAULT 0,
			frames INT NOT NULL DEFAULT 0,
			redacted_frames INT NOT NULL DEFAULT 0,
			boxes INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS redaction_runs_started_at_idx ON redaction_runs (started_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// StartRun records a run in the running state and returns its ID.
func (s *Store) StartRun(ctx context.Context, r Run) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO redaction_runs (id, input_path, output_path, keyword, case_sensitive, min_confidence, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, id, r.InputPath, r.OutputPath, r.Keyword, r.CaseSensitive, r.MinConfidence, StatusRunning)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun stores the totals and final status. A non-nil runErr marks the run failed.
func (s *Store) FinishRun(ctx context.Context, id string, frames, redactedFrames, boxes int, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE redaction_runs
		SET frames = $2, redacted_frames = $3, boxes = $4, status = $5, error = $6, finished_at = NOW()
		WHERE id = $1
	`, id, frames, redactedFrames, boxes, status, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id::text, input_path, output_path, keyword, case_sensitive, min_confidence,
		       frames, redacted_frames, boxes, status, error, started_at, finished_at
		FROM redaction_runs
		ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.InputPath, &r.OutputPath, &r.Keyword, &r.CaseSensitive, &r.MinConfidence,
			&r.Frames, &r.RedactedFrames, &r.Boxes, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS redaction_runs CASCADE;`)
	return err
}
