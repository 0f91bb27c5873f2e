package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"reclaim/internal/logging"
	"reclaim/internal/logs"
	"reclaim/internal/report"
	"reclaim/internal/staging"
)

// recoverPreviousRun cleans up after a process that was killed mid-run: job
// directories older than stale_job_hours are removed and ledger rows still in
// a non-terminal stage are marked interrupted. Run logs and reports past
// logging.retention_days are pruned. Interrupted jobs that had
// reached the upload are flagged for reconciliation, which keeps their
// assets out of the worklist until an operator resolves them.
func (m *Manager) recoverPreviousRun(ctx context.Context, logger *slog.Logger) error {
	result := staging.CleanStale(ctx, m.cfg.Paths.WorkDir, m.cfg.StaleJobAge(), logger)
	if len(result.Removed) > 0 {
		logger.Info("removed stale job directories",
			logging.String(logging.FieldEventType, "stale_workdirs_removed"),
			logging.Int("count", len(result.Removed)),
		)
	}
	for _, cleanupErr := range result.Errors {
		logging.WarnWithContext(logger, "stale job directory not removed", "stale_workdir_cleanup_failed",
			logging.String("path", cleanupErr.Path),
			logging.Error(cleanupErr.Error),
			logging.String(logging.FieldErrorHint, "check permissions on paths.work_dir"),
		)
	}

	if pruned := logs.Prune(logger, m.cfg.Logging.RetentionDays, m.now(),
		logs.Target{Dir: m.runLog.Dir(), Pattern: "*.log"},
		logs.Target{Dir: filepath.Join(m.cfg.Paths.LogDir, ReportDirName), Pattern: report.FileName("*")},
	); pruned > 0 {
		logger.Info("pruned old run logs and reports",
			logging.String(logging.FieldEventType, "logs_pruned"),
			logging.Int("count", pruned),
		)
	}

	n, err := m.store.MarkInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if n > 0 {
		logging.WarnWithContext(logger, "previous run was interrupted", "jobs_interrupted",
			logging.Int64("count", n),
			logging.String(logging.FieldErrorHint, "run reclaim reconcile list to review assets that may have duplicates"),
		)
	}
	return nil
}
