package logs

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reclaim/internal/logging"
)

// Target is a directory and file-name pattern subject to retention.
type Target struct {
	Dir     string
	Pattern string
}

// Prune removes files matching targets whose modification time is more than
// retentionDays old and returns how many were removed. Zero disables pruning.
func Prune(logger *slog.Logger, retentionDays int, now time.Time, targets ...Target) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				if matched, err := filepath.Match(pat, name); err != nil || !matched {
					continue
				}
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				logging.WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check file permissions and log_dir ownership"),
					logging.String(logging.FieldImpact, "old file remains on disk"),
				)
				continue
			}
			removed++
			logger.Debug("log pruned", logging.String("path", path), logging.String(logging.FieldEventType, "log_pruned"))
		}
	}
	return removed
}
