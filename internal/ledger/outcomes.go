package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const timeLayout = time.RFC3339Nano

// Outcome is the persisted result of one finishing job.
type Outcome struct {
	ID         int64
	RunID      string
	JobID      string
	Asset      string
	Cell       string
	Status     string
	Stage      string
	Skipped    bool
	Warning    string
	Error      string
	Duration   time.Duration
	FinishedAt time.Time
}

const outcomeColumns = "id, run_id, job_id, asset, cell, status, stage, skipped, warning, error_message, duration_ms, finished_at"

// Record appends an outcome. FinishedAt defaults to now.
func (s *Store) Record(ctx context.Context, outcome Outcome) (int64, error) {
	if strings.TrimSpace(outcome.Asset) == "" {
		return 0, fmt.Errorf("record outcome: asset is required")
	}
	if strings.TrimSpace(outcome.Status) == "" {
		return 0, fmt.Errorf("record outcome: status is required")
	}
	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	skipped := 0
	if outcome.Skipped {
		skipped = 1
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO job_outcomes (run_id, job_id, asset, cell, status, stage, skipped, warning, error_message, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.JobID,
		outcome.Asset,
		nullableString(outcome.Cell),
		outcome.Status,
		nullableString(outcome.Stage),
		skipped,
		nullableString(outcome.Warning),
		nullableString(outcome.Error),
		outcome.Duration.Milliseconds(),
		finished.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outcome id: %w", err)
	}
	return id, nil
}

// Latest returns up to limit outcomes, most recent first.
func (s *Store) Latest(ctx context.Context, limit int) ([]Outcome, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM job_outcomes ORDER BY finished_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// ForRun returns every outcome recorded under runID in insertion order.
func (s *Store) ForRun(ctx context.Context, runID string) ([]Outcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM job_outcomes WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query run outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// StatusCounts aggregates outcomes by status since the given instant.
func (s *Store) StatusCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM job_outcomes WHERE finished_at >= ? GROUP BY status",
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Prune removes outcomes finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM job_outcomes WHERE finished_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

func scanOutcomes(rows *sql.Rows) ([]Outcome, error) {
	var outcomes []Outcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

func scanOutcome(scanner interface{ Scan(dest ...any) error }) (Outcome, error) {
	var (
		outcome     Outcome
		cell        sql.NullString
		stage       sql.NullString
		skipped     int
		warning     sql.NullString
		errMessage  sql.NullString
		durationMS  int64
		finishedRaw string
	)
	if err := scanner.Scan(
		&outcome.ID,
		&outcome.RunID,
		&outcome.JobID,
		&outcome.Asset,
		&cell,
		&outcome.Status,
		&stage,
		&skipped,
		&warning,
		&errMessage,
		&durationMS,
		&finishedRaw,
	); err != nil {
		return Outcome{}, err
	}
	outcome.Cell = cell.String
	outcome.Stage = stage.String
	outcome.Skipped = skipped != 0
	outcome.Warning = warning.String
	outcome.Error = errMessage.String
	outcome.Duration = time.Duration(durationMS) * time.Millisecond
	if ts, err := time.Parse(timeLayout, finishedRaw); err == nil {
		outcome.FinishedAt = ts
	}
	return outcome, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
