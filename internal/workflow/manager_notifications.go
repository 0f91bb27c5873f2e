package workflow

import (
	"context"
	"errors"
	"log/slog"

	"reclaim/internal/logging"
	"reclaim/internal/notifications"
	"reclaim/internal/report"
)

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (m *Manager) notifyRunStarted(ctx context.Context, logger *slog.Logger, count, concurrency int) {
	m.publish(ctx, logger, notifications.EventRunStarted, notifications.Payload{
		"count":       count,
		"dryRun":      m.cfg.Run.DryRun,
		"concurrency": concurrency,
	})
}

func (m *Manager) notifyRunCompleted(ctx context.Context, logger *slog.Logger, rep *report.Report) {
	m.publish(ctx, logger, notifications.EventRunCompleted, notifications.Payload{
		"converted":  rep.Totals.Converted,
		"skipped":    rep.Totals.Skipped,
		"failed":     rep.Totals.Failed,
		"savedBytes": rep.Totals.SavedBytes(),
		"duration":   rep.Duration(),
	})
}

func (m *Manager) notifyRunFailed(ctx context.Context, logger *slog.Logger, stage string, err error) {
	m.publish(ctx, logger, notifications.EventRunFailed, notifications.Payload{
		"context": stage,
		"error":   err,
	})
}

func (m *Manager) notifyReconciliation(ctx context.Context, logger *slog.Logger, rep *report.Report) {
	m.publish(ctx, logger, notifications.EventReconciliationNeeded, notifications.Payload{
		"count": rep.Totals.Reconciliation,
	})
}
