package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reclaim/internal/immich"
	"reclaim/internal/logging"
	"reclaim/internal/services"
	"reclaim/internal/staging"
)

const defaultCompensationTimeout = 2 * time.Minute

// Orchestrator drives single jobs through the pipeline. One Orchestrator is
// shared by every worker; it holds no per-job state.
type Orchestrator struct {
	library    Library
	transcoder Transcoder
	validator  OutputValidator
	area       *staging.Area

	recorder            Recorder
	dryRun              bool
	compensationTimeout time.Duration
	logger              *slog.Logger
	now                 func() time.Time
	newID               func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDryRun stops every job after validation and records a simulated
// conversion.
func WithDryRun(enabled bool) Option {
	return func(o *Orchestrator) { o.dryRun = enabled }
}

// WithRecorder persists job progress.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCompensationTimeout bounds the rollback delete that runs after a
// cancelled or failed job.
func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.compensationTimeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// New constructs an Orchestrator.
func New(library Library, transcoder Transcoder, validator OutputValidator, area *staging.Area, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		library:             library,
		transcoder:          transcoder,
		validator:           validator,
		area:                area,
		recorder:            nopRecorder{},
		compensationTimeout: defaultCompensationTimeout,
		logger:              logging.NewNop(),
		now:                 time.Now,
		newID:               uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DryRun reports whether the orchestrator stops before touching the library.
func (o *Orchestrator) DryRun() bool { return o.dryRun }

// Run processes one asset to a terminal stage and returns the finished job.
// It never returns a nil job and never panics on stage failure; the only
// effect of ctx cancellation is an earlier FAILED outcome.
func (o *Orchestrator) Run(ctx context.Context, asset immich.Asset) *Job {
	job := &Job{
		ID:        o.newID(),
		Asset:     asset,
		Stage:     StagePending,
		StartedAt: o.now(),
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithAssetID(ctx, asset.ID)
	logger := logging.WithContext(ctx, o.logger).With(
		logging.String("file_name", asset.OriginalFileName),
		logging.String("asset_type", asset.Type),
	)

	o.record(ctx, logger, "start", o.recorder.JobStarted, job)

	dir, err := o.area.Allocate(job.ID)
	if err != nil {
		o.fail(ctx, logger, job, StagePending, err)
		o.finish(ctx, logger, job)
		return job
	}
	job.WorkDir = dir.Path
	defer func() {
		if err := dir.Release(); err != nil {
			logging.WarnWithContext(logger, "job directory cleanup failed", "workdir_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the directory by hand or run reclaim staging clean"),
			)
		}
	}()

	for stage := Next(StagePending, o.dryRun); !stage.Terminal(); stage = Next(stage, o.dryRun) {
		job.Stage = stage
		stageCtx := services.WithStage(ctx, string(stage))
		stageLogger := logging.WithContext(stageCtx, logger)
		o.record(stageCtx, stageLogger, "stage", o.recorder.StageEntered, job)

		started := o.now()
		stageLogger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
		err := o.handlerFor(stage)(stageCtx, job)
		if err == nil {
			stageLogger.Debug("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Duration("stage_duration", o.now().Sub(started)),
			)
			continue
		}

		var skipped *skip
		if errors.As(err, &skipped) {
			job.FailedStage = stage
			job.Outcome = OutcomeSkipped
			job.Stage = StageSkipped
			job.Reason = skipped.reason
			job.Detail = skipped.detail
		} else {
			o.fail(stageCtx, stageLogger, job, stage, err)
		}
		o.finish(ctx, logger, job)
		return job
	}

	job.Stage = StageDone
	job.Outcome = OutcomeConverted
	job.Simulated = o.dryRun
	o.finish(ctx, logger, job)
	return job
}

type stageHandler func(ctx context.Context, job *Job) error

func (o *Orchestrator) handlerFor(stage Stage) stageHandler {
	switch stage {
	case StageDownloading:
		return o.stageDownload
	case StageTranscoding:
		return o.stageTranscode
	case StageValidating:
		return o.stageValidate
	case StageUploading:
		return o.stageUpload
	case StageCopyingMetadata:
		return o.stageCopyMetadata
	case StageVerifying:
		return o.stageVerify
	case StageDeletingOriginal:
		return o.stageDeleteOriginal
	default:
		return func(context.Context, *Job) error {
			return fmt.Errorf("no handler for stage %s", stage)
		}
	}
}

// fail applies the stage's failure transition, including the compensating
// hard delete of an uploaded replacement.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, job *Job, stage Stage, err error) {
	reason, compensate := FailurePolicy(stage)
	var failure *Failure
	if errors.As(err, &failure) && failure.Reason != "" {
		reason = failure.Reason
	}
	if ctx.Err() != nil && !stage.Mutating() {
		reason = ReasonInterrupted
	}

	job.FailedStage = stage
	job.Stage = StageFailed
	job.Outcome = OutcomeFailed
	job.Reason = reason
	job.Err = err
	job.Detail = err.Error()

	switch {
	case compensate && job.NewAssetID != "":
		o.compensate(ctx, logger, job)
	case stage == StageDeletingOriginal:
		job.NeedsReconciliation = true
	case stage == StageUploading && ctx.Err() != nil:
		// The server may have committed the upload before the cancellation
		// reached the client.
		job.NeedsReconciliation = true
	}

	attrs := []logging.Attr{
		logging.String("failed_stage", string(stage)),
		logging.String("reason", string(reason)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.String(logging.FieldImpact, "original asset left in place"),
	}
	if job.NeedsReconciliation {
		attrs = append(attrs,
			logging.Bool("needs_reconciliation", true),
			logging.String("new_asset_id", job.NewAssetID),
		)
	}
	logging.ErrorWithContext(logger, "conversion failed", "job_failed", attrs...)
}

func (o *Orchestrator) compensate(ctx context.Context, logger *slog.Logger, job *Job) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.compensationTimeout)
	defer cancel()

	if err := o.library.HardDelete(rollbackCtx, job.NewAssetID); err != nil {
		job.NeedsReconciliation = true
		job.Detail = fmt.Sprintf("%s; rollback of %s failed: %v", job.Detail, job.NewAssetID, err)
		logging.ErrorWithContext(logger, "rollback delete failed", "rollback_failed",
			logging.String("new_asset_id", job.NewAssetID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the new asset by hand, then run reclaim reconcile"),
			logging.String(logging.FieldImpact, "library holds a duplicate of the original"),
		)
		return
	}
	logger.Info("rolled back uploaded asset",
		logging.String(logging.FieldEventType, "rollback_complete"),
		logging.String("new_asset_id", job.NewAssetID),
	)
	job.NewAssetID = ""
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, job *Job) {
	job.FinishedAt = o.now()
	o.record(ctx, logger, "finish", o.recorder.JobFinished, job)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("outcome", string(job.Outcome)),
		logging.Int64("input_bytes", job.InputBytes),
		logging.Int64("output_bytes", job.OutputBytes()),
		logging.Duration("job_duration", job.Duration()),
	}
	if job.Reason != "" {
		attrs = append(attrs, logging.String("reason", string(job.Reason)))
	}
	if job.Simulated {
		attrs = append(attrs, logging.Bool("simulated", true))
	}
	logger.Info("job finished", logging.Args(attrs...)...)
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, what string, fn func(context.Context, *Job) error, job *Job) {
	// Ledger writes must land even while the run is shutting down.
	if err := fn(context.WithoutCancel(ctx), job); err != nil {
		logging.WarnWithContext(logger, "ledger update failed", "ledger_write_failed",
			logging.String("ledger_event", what),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ledger path and disk space"),
			logging.String(logging.FieldImpact, "job history may be incomplete"),
		)
	}
}
