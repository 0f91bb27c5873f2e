package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, run_id, asset_id, asset_type, file_name, stage, outcome, reason, error_message, input_bytes, output_bytes, output_format, new_asset_id, simulated, needs_reconciliation, reconciled_at, reconcile_note, attempts_json, created_at, updated_at"

// CreateJob inserts a job row at its initial stage.
func (s *Store) CreateJob(ctx context.Context, job Job) error {
	if job.ID == "" || job.RunID == "" || job.AssetID == "" {
		return errors.New("create job: id, run id and asset id required")
	}
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, run_id, asset_id, asset_type, file_name, stage, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RunID, job.AssetID, job.AssetType, nullString(job.FileName), job.Stage, now, now,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// UpdateStage records the stage a job has entered, along with the fields
// known so far.
func (s *Store) UpdateStage(ctx context.Context, job Job) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET stage = ?, input_bytes = ?, new_asset_id = ?, updated_at = ? WHERE id = ?`,
		job.Stage, job.InputBytes, nullString(job.NewAssetID), formatTime(time.Now()), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	return nil
}

// FinishJob records a job's terminal outcome.
func (s *Store) FinishJob(ctx context.Context, job Job) error {
	if job.Outcome == "" {
		return errors.New("finish job: outcome required")
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET stage = ?, outcome = ?, reason = ?, error_message = ?, input_bytes = ?, output_bytes = ?,
			output_format = ?, new_asset_id = ?, simulated = ?, needs_reconciliation = ?, attempts_json = ?, updated_at = ?
			WHERE id = ?`,
		job.Stage, job.Outcome, nullString(job.Reason), nullString(job.ErrorMessage), job.InputBytes, job.OutputBytes,
		nullString(job.OutputFormat), nullString(job.NewAssetID), boolToInt(job.Simulated), boolToInt(job.NeedsReconciliation),
		nullString(job.AttemptsJSON), formatTime(time.Now()), job.ID,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// GetJob returns one job, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RunJobs lists the jobs of one run in creation order.
func (s *Store) RunJobs(ctx context.Context, runID string) ([]Job, error) {
	return s.queryJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE run_id = ? ORDER BY created_at, id", runID)
}

// MarkInterrupted closes out runs and jobs left unfinished by a killed
// process. Jobs that had reached the upload stage or later are flagged for
// reconciliation. It returns the number of jobs updated.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(stagesPastUpload)), ",")
	args := []any{OutcomeFailed, ReasonInterrupted, now}
	for _, stage := range stagesPastUpload {
		args = append(args, stage)
	}

	var affected int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET outcome = ?, reason = ?, updated_at = ?,
				needs_reconciliation = CASE WHEN stage IN (`+placeholders+`) THEN 1 ELSE needs_reconciliation END
				WHERE outcome IS NULL`,
			args...,
		)
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`,
			string(RunInterrupted), now, string(RunRunning),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return affected, nil
}

// PendingReconciliation lists unresolved jobs that need an operator to check
// the library by hand, oldest first.
func (s *Store) PendingReconciliation(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE needs_reconciliation = 1 AND reconciled_at IS NULL ORDER BY updated_at, id")
}

// ReconciliationAssets returns the asset IDs with unresolved reconciliation.
func (s *Store) ReconciliationAssets(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT asset_id FROM jobs WHERE needs_reconciliation = 1 AND reconciled_at IS NULL")
	if err != nil {
		return nil, fmt.Errorf("reconciliation assets: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ErrJobNotFound is returned when a job ID does not exist or needs no
// reconciliation.
var ErrJobNotFound = errors.New("job not found")

// ResolveReconciliation marks a job as reconciled with an operator note.
func (s *Store) ResolveReconciliation(ctx context.Context, jobID, note string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET reconciled_at = ?, reconcile_note = ?, updated_at = ?
			WHERE id = ? AND needs_reconciliation = 1 AND reconciled_at IS NULL`,
		formatTime(time.Now()), nullString(note), formatTime(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job           Job
		fileName      sql.NullString
		outcome       sql.NullString
		reason        sql.NullString
		errorMessage  sql.NullString
		outputFormat  sql.NullString
		newAssetID    sql.NullString
		simulated     int
		reconcile     int
		reconciledRaw sql.NullString
		reconcileNote sql.NullString
		attempts      sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.RunID,
		&job.AssetID,
		&job.AssetType,
		&fileName,
		&job.Stage,
		&outcome,
		&reason,
		&errorMessage,
		&job.InputBytes,
		&job.OutputBytes,
		&outputFormat,
		&newAssetID,
		&simulated,
		&reconcile,
		&reconciledRaw,
		&reconcileNote,
		&attempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.FileName = fileName.String
	job.Outcome = outcome.String
	job.Reason = reason.String
	job.ErrorMessage = errorMessage.String
	job.OutputFormat = outputFormat.String
	job.NewAssetID = newAssetID.String
	job.Simulated = simulated != 0
	job.NeedsReconciliation = reconcile != 0
	job.ReconciledAt = parseTimePtr(reconciledRaw)
	job.ReconcileNote = reconcileNote.String
	job.AttemptsJSON = attempts.String
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	return &job, nil
}
