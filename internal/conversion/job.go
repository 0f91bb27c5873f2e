package conversion

import (
	"context"
	"time"

	"reclaim/internal/encoding"
	"reclaim/internal/immich"
	"reclaim/internal/media/format"
)

// Library is the subset of the library client the pipeline mutates and reads.
// Implementations must be safe for concurrent use.
type Library interface {
	Download(ctx context.Context, id, dst string) (immich.Downloaded, error)
	Upload(ctx context.Context, path string, req immich.UploadRequest) (string, error)
	CopyMetadata(ctx context.Context, from, to string) error
	VerifyAccessible(ctx context.Context, id string) error
	TrashDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

// Transcoder turns a downloaded original into a verdict; *encoding.Strategy
// in production.
type Transcoder interface {
	Decide(ctx context.Context, src encoding.Source, workDir string) (encoding.Decision, error)
}

// OutputValidator checks the promoted output; *encoding.Validator in
// production.
type OutputValidator interface {
	Validate(ctx context.Context, path string, expected format.Format) error
}

// Recorder persists job progress. Errors are logged and never fail a job.
type Recorder interface {
	JobStarted(ctx context.Context, job *Job) error
	StageEntered(ctx context.Context, job *Job) error
	JobFinished(ctx context.Context, job *Job) error
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(context.Context, *Job) error   { return nil }
func (nopRecorder) StageEntered(context.Context, *Job) error { return nil }
func (nopRecorder) JobFinished(context.Context, *Job) error  { return nil }

// Job is one pipeline run for one asset. It is owned by a single goroutine
// until Run returns.
type Job struct {
	ID      string
	Asset   immich.Asset
	Stage   Stage
	WorkDir string

	SourcePath   string
	SourceFormat string
	InputBytes   int64
	Output       *encoding.Output
	Attempts     []encoding.Attempt

	Outcome Outcome
	Reason  Reason
	Detail  string
	// FailedStage is the stage whose handler failed or skipped.
	FailedStage Stage
	Err         error

	NewAssetID          string
	NeedsReconciliation bool
	// Simulated marks a dry-run conversion that stopped after validation.
	Simulated bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// OutputBytes is the size of the accepted output, or 0.
func (j *Job) OutputBytes() int64 {
	if j.Output == nil {
		return 0
	}
	return j.Output.Size
}

// OutputFormat is the extension-style name of the accepted output format.
func (j *Job) OutputFormat() string {
	if j.Output == nil {
		return ""
	}
	return j.Output.Format.String()
}

// SavedBytes is the storage reclaimed by a converted job.
func (j *Job) SavedBytes() int64 {
	if j.Outcome != OutcomeConverted {
		return 0
	}
	return j.InputBytes - j.OutputBytes()
}

// Duration is the wall-clock time the job took.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// Converted reports whether the job replaced its asset (or would have, in a
// dry run).
func (j *Job) Converted() bool { return j.Outcome == OutcomeConverted }
