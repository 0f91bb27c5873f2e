package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, started_at, finished_at, status, dry_run, concurrency, total, converted, skipped, failed, input_bytes, output_bytes, error_message"

// BeginRun inserts a running run row.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("begin run: id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, started_at, status, dry_run, concurrency) VALUES (?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), string(RunRunning), boolToInt(run.DryRun), run.Concurrency,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and totals of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, totals RunTotals, errMsg string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, total = ?, converted = ?, skipped = ?, failed = ?,
			input_bytes = ?, output_bytes = ?, error_message = ? WHERE id = ?`,
		formatTime(time.Now()), string(status), totals.Total, totals.Converted, totals.Skipped, totals.Failed,
		totals.InputBytes, totals.OutputBytes, nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun returns one run, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// History returns the most recent runs, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		status      string
		dryRun      int
		errMsg      sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&startedRaw,
		&finishedRaw,
		&status,
		&dryRun,
		&run.Concurrency,
		&run.Totals.Total,
		&run.Totals.Converted,
		&run.Totals.Skipped,
		&run.Totals.Failed,
		&run.Totals.InputBytes,
		&run.Totals.OutputBytes,
		&errMsg,
	); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTimePtr(finishedRaw)
	run.Status = RunStatus(status)
	run.DryRun = dryRun != 0
	run.ErrorMessage = errMsg.String
	return &run, nil
}
