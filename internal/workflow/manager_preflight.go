package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reclaim/internal/logging"
	"reclaim/internal/services"
)

// runPreflightChecks validates the filesystem and encoder binaries before the
// scan. Returns nil when every required check passes, or an error describing
// all failures.
func (m *Manager) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	if m.checks == nil {
		return nil
	}
	results := m.checks(ctx, m.cfg)

	var failures []string
	for _, r := range results {
		switch {
		case r.Passed:
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
		case r.Optional:
			logging.WarnWithContext(logger, "optional preflight check failed", "preflight_degraded",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldImpact, "feature disabled for this run"),
			)
		default:
			logger.Error("preflight check failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
				logging.String(logging.FieldErrorHint, "fix the reported issue and rerun; reclaim check lists every check"),
			)
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}

	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "preflight", "", "checks failed: "+strings.Join(failures, "; "), nil)
	}
	return nil
}
