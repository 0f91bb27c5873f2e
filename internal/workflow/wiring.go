package workflow

import (
	"fmt"
	"log/slog"

	"reclaim/internal/config"
	"reclaim/internal/conversion"
	"reclaim/internal/encoding"
	"reclaim/internal/immich"
	"reclaim/internal/queue"
	"reclaim/internal/staging"
)

// Build assembles a Manager and its production collaborators from
// configuration. The returned close function releases the ledger.
func Build(cfg *config.Config, logger *slog.Logger, opts ...ManagerOption) (*Manager, func() error, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	area, err := staging.NewArea(cfg.Paths.WorkDir)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("prepare work directory: %w", err)
	}

	client := immich.NewFromConfig(cfg, logger)
	strategy := encoding.NewFromConfig(cfg, logger)
	orchestrator := conversion.New(client, strategy, strategy.Validator(), area,
		conversion.WithDryRun(cfg.Run.DryRun),
		conversion.WithRecorder(NewLedgerRecorder(store)),
		conversion.WithLogger(logger),
	)
	return NewManager(cfg, client, orchestrator, store, logger, opts...), store.Close, nil
}
