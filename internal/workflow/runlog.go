package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reclaim/internal/config"
	"reclaim/internal/logging"
	"reclaim/internal/report"
)

// RunLog manages the per-run audit files: one JSON line per asset outcome,
// kept beside the main log.
type RunLog struct {
	baseDir string
	level   string
}

// NewRunLog creates a run log rooted at <log_dir>/runs. An empty log_dir
// disables it.
func NewRunLog(cfg *config.Config) *RunLog {
	dir := ""
	level := "info"
	if cfg != nil {
		if strings.TrimSpace(cfg.Paths.LogDir) != "" {
			dir = filepath.Join(cfg.Paths.LogDir, "runs")
		}
		if strings.TrimSpace(cfg.Logging.Level) != "" {
			level = cfg.Logging.Level
		}
	}
	return &RunLog{baseDir: dir, level: level}
}

// Dir returns the directory holding run logs.
func (r *RunLog) Dir() string { return r.baseDir }

// Open creates the log file for a run and returns a logger writing to it.
func (r *RunLog) Open(runID string, started time.Time) (*slog.Logger, string, error) {
	if r == nil || strings.TrimSpace(r.baseDir) == "" {
		return logging.NewNop(), "", nil
	}
	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("ensure run log directory: %w", err)
	}
	path := filepath.Join(r.baseDir, RunLogName(runID, started))
	logger, err := logging.New(logging.Options{
		Level:       r.level,
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		return nil, "", err
	}
	return logger.With(logging.String(logging.FieldRunID, runID)), path, nil
}

// Find returns the log file of runID, or of the newest run when runID is
// empty. Names sort chronologically by their timestamp prefix.
func (r *RunLog) Find(runID string) (string, error) {
	if r == nil || strings.TrimSpace(r.baseDir) == "" {
		return "", errors.New("run logs disabled: paths.log_dir is empty")
	}
	pattern := "*.log"
	if runID != "" {
		pattern = "*-" + runID + ".log"
	}
	matches, err := filepath.Glob(filepath.Join(r.baseDir, pattern))
	if err != nil {
		return "", fmt.Errorf("find run log: %w", err)
	}
	if len(matches) == 0 {
		if runID == "" {
			return "", fmt.Errorf("no run logs in %s: %w", r.baseDir, os.ErrNotExist)
		}
		return "", fmt.Errorf("no log for run %s: %w", runID, os.ErrNotExist)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// RunLogName is the file name of a run's audit log.
func RunLogName(runID string, started time.Time) string {
	return fmt.Sprintf("%s-%s.log", started.UTC().Format("20060102T150405"), runID)
}

func logEntry(logger *slog.Logger, e report.Entry) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "asset_outcome"),
		logging.String(logging.FieldAssetID, e.AssetID),
		logging.String("file_name", e.FileName),
		logging.String("asset_type", e.AssetType),
		logging.String("outcome", string(e.Outcome)),
		logging.Int64("input_bytes", e.InputBytes),
		logging.Int64("output_bytes", e.OutputBytes),
	}
	if e.JobID != "" {
		attrs = append(attrs, logging.String(logging.FieldJobID, e.JobID))
	}
	if e.Reason != "" {
		attrs = append(attrs, logging.String("reason", string(e.Reason)))
	}
	if e.Detail != "" {
		attrs = append(attrs, logging.String("detail", e.Detail))
	}
	if e.FailedStage != "" {
		attrs = append(attrs, logging.String(logging.FieldStage, string(e.FailedStage)))
	}
	if e.NewAssetID != "" {
		attrs = append(attrs, logging.String("new_asset_id", e.NewAssetID))
	}
	if e.NeedsReconciliation {
		attrs = append(attrs, logging.Bool("needs_reconciliation", true))
	}
	if e.Simulated {
		attrs = append(attrs, logging.Bool("simulated", true))
	}
	logger.Info("asset processed", logging.Args(attrs...)...)
}
