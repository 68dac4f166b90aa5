// Package trace persists workflow run histories to SQLite so past runs can
// be inspected after the fact.
package trace

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/maestro/internal/models"
	"github.com/harrison/maestro/internal/workflow"
)

//go:embed schema.sql
var schemaSQL string

// Store records workflow runs in a SQLite database. It implements the
// workflow sink interface.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the trace database at dbPath.
// ":memory:" is accepted for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks instead of
	// failing when another process is initializing the same file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry retries a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists one terminal run snapshot, replacing any earlier record
// of the same run.
func (s *Store) SaveRun(snap workflow.Snapshot) error {
	planJSON, err := json.Marshal(snap.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	replansJSON, err := json.Marshal(snap.Replans)
	if err != nil {
		return fmt.Errorf("marshal replans: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, original_request, phase, failure_reason, plan, replans, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.OriginalRequest, string(snap.Phase), snap.FailureReason,
		string(planJSON), string(replansJSON), snap.StartedAt, snap.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM results WHERE run_id = ?`, snap.RunID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	for seq, r := range snap.History {
		validationsJSON, err := json.Marshal(r.Validations)
		if err != nil {
			return fmt.Errorf("marshal validations: %w", err)
		}
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.Exec(`INSERT INTO results
			(id, run_id, task_id, seq, status, success, output, confidence, validations, metadata, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, snap.RunID, r.TaskID, seq, string(r.Status), r.Success, r.Output,
			r.Confidence, string(validationsJSON), string(metadataJSON), r.StartedAt, r.CompletedAt)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// LoadRun retrieves a stored run and its full attempt history.
func (s *Store) LoadRun(runID string) (*workflow.Snapshot, error) {
	var snap workflow.Snapshot
	var phase, planJSON, replansJSON string
	err := s.db.QueryRow(`SELECT run_id, original_request, phase, failure_reason, plan, replans, started_at, completed_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&snap.RunID, &snap.OriginalRequest, &phase, &snap.FailureReason,
		&planJSON, &replansJSON, &snap.StartedAt, &snap.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	snap.Phase = workflow.Phase(phase)
	if err := json.Unmarshal([]byte(planJSON), &snap.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if err := json.Unmarshal([]byte(replansJSON), &snap.Replans); err != nil {
		return nil, fmt.Errorf("unmarshal replans: %w", err)
	}

	rows, err := s.db.Query(`SELECT id, task_id, status, success, output, confidence, validations, metadata, started_at, completed_at
		FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.TaskResult
		var status, validationsJSON, metadataJSON string
		if err := rows.Scan(&r.ID, &r.TaskID, &status, &r.Success, &r.Output,
			&r.Confidence, &validationsJSON, &metadataJSON, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = models.TaskStatus(status)
		if err := json.Unmarshal([]byte(validationsJSON), &r.Validations); err != nil {
			return nil, fmt.Errorf("unmarshal validations: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		snap.History = append(snap.History, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return &snap, nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID           string
	OriginalRequest string
	Phase           workflow.Phase
	FailureReason   string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT run_id, original_request, phase, failure_reason, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var phase string
		if err := rows.Scan(&r.RunID, &r.OriginalRequest, &phase, &r.FailureReason, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Phase = workflow.Phase(phase)
		out = append(out, r)
	}
	return out, rows.Err()
}
