package workflow

import (
	"context"
	"encoding/json"
	"errors"

	"reclaim/internal/conversion"
	"reclaim/internal/queue"
	"reclaim/internal/services"
)

// LedgerRecorder persists pipeline progress into the run ledger. The run ID
// comes from the job's context.
type LedgerRecorder struct {
	store *queue.Store
}

// NewLedgerRecorder wraps a ledger store.
func NewLedgerRecorder(store *queue.Store) *LedgerRecorder {
	return &LedgerRecorder{store: store}
}

var errNoRunID = errors.New("ledger: no run id in context")

func (r *LedgerRecorder) JobStarted(ctx context.Context, job *conversion.Job) error {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return errNoRunID
	}
	return r.store.CreateJob(ctx, queue.Job{
		ID:        job.ID,
		RunID:     runID,
		AssetID:   job.Asset.ID,
		AssetType: job.Asset.Type,
		FileName:  job.Asset.OriginalFileName,
		Stage:     string(job.Stage),
	})
}

func (r *LedgerRecorder) StageEntered(ctx context.Context, job *conversion.Job) error {
	return r.store.UpdateStage(ctx, queue.Job{
		ID:         job.ID,
		Stage:      string(job.Stage),
		InputBytes: job.InputBytes,
		NewAssetID: job.NewAssetID,
	})
}

func (r *LedgerRecorder) JobFinished(ctx context.Context, job *conversion.Job) error {
	attempts := ""
	if len(job.Attempts) > 0 {
		data, err := json.Marshal(job.Attempts)
		if err != nil {
			return err
		}
		attempts = string(data)
	}
	// The ledger keeps the stage a job stopped at rather than FAILED/SKIPPED.
	stage := job.Stage
	if job.Outcome != conversion.OutcomeConverted && job.FailedStage != "" {
		stage = job.FailedStage
	}
	return r.store.FinishJob(ctx, queue.Job{
		ID:                  job.ID,
		Stage:               string(stage),
		Outcome:             string(job.Outcome),
		Reason:              string(job.Reason),
		ErrorMessage:        job.Detail,
		InputBytes:          job.InputBytes,
		OutputBytes:         job.OutputBytes(),
		OutputFormat:        job.OutputFormat(),
		NewAssetID:          job.NewAssetID,
		Simulated:           job.Simulated,
		NeedsReconciliation: job.NeedsReconciliation,
		AttemptsJSON:        attempts,
	})
}

var _ conversion.Recorder = (*LedgerRecorder)(nil)
