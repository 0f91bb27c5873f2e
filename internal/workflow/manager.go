package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/config"
	"reclaim/internal/conversion"
	"reclaim/internal/immich"
	"reclaim/internal/logging"
	"reclaim/internal/notifications"
	"reclaim/internal/preflight"
	"reclaim/internal/queue"
	"reclaim/internal/report"
	"reclaim/internal/services"
)

// Library is what a run needs from the library client beyond the pipeline's
// own calls: the connection test and the asset scan.
type Library interface {
	Lister
	Ping(ctx context.Context) error
}

// Processor runs one asset through the pipeline; *conversion.Orchestrator in
// production. It must be safe for concurrent use.
type Processor interface {
	Run(ctx context.Context, asset immich.Asset) *conversion.Job
}

// CheckFunc returns the preflight results that gate a run.
type CheckFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// Manager coordinates one batch run.
type Manager struct {
	cfg       *config.Config
	library   Library
	processor Processor
	store     *queue.Store
	logger    *slog.Logger
	notifier  notifications.Service
	checks    CheckFunc
	runLog    *RunLog
	now       func() time.Time
	newRunID  func() string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithChecks replaces the preflight checks run before scanning.
func WithChecks(fn CheckFunc) ManagerOption {
	return func(m *Manager) { m.checks = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRunIDGenerator overrides run ID generation.
func WithRunIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newRunID = fn
		}
	}
}

// NewManager constructs a run manager.
func NewManager(cfg *config.Config, library Library, processor Processor, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		library:   library,
		processor: processor,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		notifier:  notifications.NewService(cfg),
		checks:    defaultChecks,
		runLog:    NewRunLog(cfg),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultChecks(ctx context.Context, cfg *config.Config) []preflight.Result {
	// The library connection is tested separately so its failure is
	// reported on its own.
	return preflight.RunAll(ctx, cfg, nil)
}

// Execute performs a complete run: preflight, recovery of a previous killed
// run, the connection test, the scan, and the worker pool. The report is
// returned whenever the pool ran, even when the run was interrupted.
func (m *Manager) Execute(ctx context.Context) (*report.Report, error) {
	ctx = services.WithRunID(ctx, m.newRunID())
	logger := logging.WithContext(ctx, m.logger)

	if err := m.runPreflightChecks(ctx, logger); err != nil {
		m.notifyRunFailed(ctx, logger, "preflight", err)
		return nil, err
	}
	if err := m.recoverPreviousRun(ctx, logger); err != nil {
		m.notifyRunFailed(ctx, logger, "recovery", err)
		return nil, err
	}

	logger.Info("testing library connection", logging.String(logging.FieldEventType, "connection_test"))
	if err := m.library.Ping(ctx); err != nil {
		marker := services.ErrTransient
		if immich.IsAuth(err) {
			marker = services.ErrAuth
		}
		err = services.Wrap(marker, "scan", "connection test", "library connection failed", err)
		logging.ErrorWithContext(logger, "library connection failed", "connection_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		m.notifyRunFailed(ctx, logger, "connection test", err)
		return nil, err
	}
	logger.Info("library connection ok", logging.String(logging.FieldEventType, "connection_ok"))

	reconcile, err := m.store.ReconciliationAssets(ctx)
	if err != nil {
		err = fmt.Errorf("load reconciliation list: %w", err)
		m.notifyRunFailed(ctx, logger, "scan", err)
		return nil, err
	}
	wl, err := BuildWorklist(ctx, m.library, m.cfg, reconcile, logger)
	if err != nil {
		m.notifyRunFailed(ctx, logger, "scan", err)
		return nil, err
	}
	return m.Run(ctx, wl)
}
