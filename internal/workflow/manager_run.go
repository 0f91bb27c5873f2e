package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"reclaim/internal/conversion"
	"reclaim/internal/logging"
	"reclaim/internal/queue"
	"reclaim/internal/report"
	"reclaim/internal/services"
)

// ReportDirName is the directory under log_dir holding JSON run reports.
const ReportDirName = "reports"

type result struct {
	item Item
	job  *conversion.Job
}

// Run dispatches a prepared worklist to the worker pool and returns the
// aggregated report. The run ID is taken from ctx when present. The error is
// non-nil only when the run could not start or ctx was cancelled.
func (m *Manager) Run(ctx context.Context, wl *Worklist) (*report.Report, error) {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok || runID == "" {
		runID = m.newRunID()
		ctx = services.WithRunID(ctx, runID)
	}
	logger := logging.WithContext(ctx, m.logger)
	concurrency := max(m.cfg.Run.Concurrency, 1)
	pending := wl.Pending()

	rep := report.New(runID, m.cfg.Run.DryRun, concurrency, m.now())
	rep.Scanned = wl.Len()
	// Ledger writes must land even when ctx is already cancelled.
	if err := m.store.BeginRun(context.WithoutCancel(ctx), queue.Run{
		ID:          runID,
		StartedAt:   rep.StartedAt,
		Status:      queue.RunRunning,
		DryRun:      rep.DryRun,
		Concurrency: concurrency,
	}); err != nil {
		err = fmt.Errorf("record run start: %w", err)
		m.notifyRunFailed(ctx, logger, "ledger", err)
		return nil, err
	}

	runLog, runLogPath, err := m.runLog.Open(runID, rep.StartedAt)
	if err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on paths.log_dir"),
			logging.String(logging.FieldImpact, "per-asset audit log will not be written"),
		)
		runLog = logging.NewNop()
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("assets", wl.Len()),
		logging.Int("dispatch", len(pending)),
		logging.Int("concurrency", concurrency),
		logging.Bool("dry_run", rep.DryRun),
		logging.String("run_log", runLogPath),
	)
	m.notifyRunStarted(ctx, logger, len(pending), concurrency)

	for _, it := range wl.Items {
		if !it.Skipped() {
			continue
		}
		entry := report.SkippedEntry(it.Index, it.Asset, it.SkipReason, it.SkipDetail)
		rep.Add(entry)
		logEntry(runLog, entry)
	}

	m.dispatch(ctx, logger, runLog, pending, concurrency, rep)
	rep.Finish(m.now())

	finishCtx := context.WithoutCancel(ctx)
	status := queue.RunCompleted
	var runErr error
	errMsg := ""
	if err := ctx.Err(); err != nil {
		status = queue.RunInterrupted
		runErr = fmt.Errorf("run interrupted: %w", err)
		errMsg = runErr.Error()
	}
	if err := m.store.FinishRun(finishCtx, runID, status, ledgerTotals(rep.Totals), errMsg); err != nil {
		logging.WarnWithContext(logger, "ledger update failed", "ledger_write_failed",
			logging.String("ledger_event", "run_finish"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history will show this run as running"),
		)
	}

	m.writeReport(logger, rep)
	m.logSummary(logger, rep)
	if runErr != nil {
		m.notifyRunFailed(finishCtx, logger, "run", runErr)
	} else {
		m.notifyRunCompleted(finishCtx, logger, rep)
	}
	m.notifyReconciliation(finishCtx, logger, rep)
	return rep, runErr
}

// dispatch feeds pending items to a pool of workers and collects every job
// into rep from this goroutine only. Items never handed to a worker because
// ctx was cancelled are reported as interrupted skips.
func (m *Manager) dispatch(ctx context.Context, logger, runLog *slog.Logger, pending []Item, concurrency int, rep *report.Report) {
	total := len(pending)
	if total == 0 {
		logger.Info("nothing to process", logging.String(logging.FieldEventType, "worklist_empty"))
		return
	}

	work := make(chan Item)
	results := make(chan result)

	var g errgroup.Group
	g.Go(func() error {
		defer close(work)
		for _, it := range pending {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case work <- it:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for range concurrency {
		g.Go(func() error {
			for it := range work {
				results <- result{item: it, job: m.processor.Run(ctx, it.Asset)}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	every := m.cfg.Run.ProgressEvery
	done := 0
	seen := make(map[int]struct{}, total)
	for r := range results {
		seen[r.item.Index] = struct{}{}
		entry := report.EntryFromJob(r.item.Index, r.job)
		rep.Add(entry)
		logEntry(runLog, entry)

		done++
		if every > 0 && (done%every == 0 || done == total) {
			logger.Info("progress",
				logging.String(logging.FieldEventType, "run_progress"),
				logging.Int("done", done),
				logging.Int("total", total),
				logging.Float64("percent", float64(done)/float64(total)*100),
			)
		}
	}

	for _, it := range pending {
		if _, ok := seen[it.Index]; ok {
			continue
		}
		entry := report.SkippedEntry(it.Index, it.Asset, conversion.ReasonInterrupted, "not dispatched before shutdown")
		rep.Add(entry)
		logEntry(runLog, entry)
	}
}

func (m *Manager) writeReport(logger *slog.Logger, rep *report.Report) {
	if strings.TrimSpace(m.cfg.Paths.LogDir) == "" {
		return
	}
	path := ReportPath(m.cfg.Paths.LogDir, rep.RunID)
	if err := rep.WriteJSON(path); err != nil {
		logging.WarnWithContext(logger, "run report not written", "report_write_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on paths.log_dir"),
		)
		return
	}
	logger.Info("run report written", logging.String("path", path))
}

// ReportPath is where a run's JSON report is written.
func ReportPath(logDir, runID string) string {
	return filepath.Join(logDir, ReportDirName, report.FileName(runID))
}

func (m *Manager) logSummary(logger *slog.Logger, rep *report.Report) {
	t := rep.Totals
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_summary"),
		logging.Int("total", t.Total),
		logging.Int("converted", t.Converted),
		logging.Int("skipped", t.Skipped),
		logging.Int("failed", t.Failed),
		logging.Int64("input_bytes", t.InputBytes),
		logging.Int64("output_bytes", t.OutputBytes),
		logging.Int64("saved_bytes", t.SavedBytes()),
		logging.Float64("saved_percent", t.SavedPercent()),
		logging.String("saved", signedBytes(t.SavedBytes())),
		logging.Duration("run_duration", rep.Duration()),
	}
	if t.Reconciliation > 0 {
		attrs = append(attrs, logging.Int("needs_reconciliation", t.Reconciliation))
	}
	for _, rc := range rep.Reasons {
		attrs = append(attrs, logging.Int(strings.ToLower(string(rc.Outcome))+"_"+string(rc.Reason), rc.Count))
	}
	logger.Info("run finished", logging.Args(attrs...)...)
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func ledgerTotals(t report.Totals) queue.RunTotals {
	return queue.RunTotals{
		Total:       t.Total,
		Converted:   t.Converted,
		Skipped:     t.Skipped,
		Failed:      t.Failed,
		InputBytes:  t.InputBytes,
		OutputBytes: t.OutputBytes,
	}
}
