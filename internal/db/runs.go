package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// IngestRun is one ingestion pass over a single source.
type IngestRun struct {
	RunID       uuid.UUID
	SourceID    string
	Status      string
	ItemsFound  int
	ItemsSaved  int
	Errors      int
	StartedAt   time.Time
	CompletedAt *time.Time
	Details     map[string]interface{}
}

func (s *Store) StartRun(ctx context.Context, sourceID string) (uuid.UUID, error) {
	var runID uuid.UUID
	err := s.pool.QueryRow(ctx,
		"INSERT INTO ingest_runs (source_id, status) VALUES ($1, $2) RETURNING run_id",
		sourceID, RunRunning).Scan(&runID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ingest run: %w", err)
	}
	return runID, nil
}

func (s *Store) FinishRun(ctx context.Context, run IngestRun) error {
	details, err := json.Marshal(run.Details)
	if err != nil {
		return fmt.Errorf("failed to encode run details: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE ingest_runs SET
			status = $1,
			items_found = $2,
			items_saved = $3,
			errors = $4,
			completed_at = NOW(),
			details = $5
		WHERE run_id = $6`,
		run.Status, run.ItemsFound, run.ItemsSaved, run.Errors, details, run.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingest run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, source_id, status, items_found, items_saved, errors, started_at, completed_at, details
		FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		var details []byte
		if err := rows.Scan(&r.RunID, &r.SourceID, &r.Status, &r.ItemsFound, &r.ItemsSaved, &r.Errors, &r.StartedAt, &r.CompletedAt, &details); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &r.Details)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunStatus derives a run's final status from its counters.
func RunStatus(saved, errs int, fatal error) string {
	switch {
	case fatal != nil && saved == 0:
		return RunFailed
	case fatal != nil || errs > 0:
		return RunPartial
	default:
		return RunCompleted
	}
}
