package queue

import (
	"database/sql"
	"time"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Outcome values mirror the pipeline's terminal outcomes.
const (
	OutcomeConverted = "CONVERTED"
	OutcomeSkipped   = "SKIPPED"
	OutcomeFailed    = "FAILED"
)

// ReasonInterrupted marks jobs whose process died mid-pipeline.
const ReasonInterrupted = "Interrupted"

// stagesPastUpload are the stages at which a new asset may already exist on
// the server.
var stagesPastUpload = []string{"UPLOADING", "COPYING_METADATA", "VERIFYING", "DELETING_ORIGINAL"}

// Run is one invocation of the batch.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	DryRun       bool
	Concurrency  int
	Totals       RunTotals
	ErrorMessage string
}

// RunTotals are the aggregate counts written when a run finishes.
type RunTotals struct {
	Total       int
	Converted   int
	Skipped     int
	Failed      int
	InputBytes  int64
	OutputBytes int64
}

// Job is the ledger row of one asset's pipeline.
type Job struct {
	ID                  string
	RunID               string
	AssetID             string
	AssetType           string
	FileName            string
	Stage               string
	Outcome             string
	Reason              string
	ErrorMessage        string
	InputBytes          int64
	OutputBytes         int64
	OutputFormat        string
	NewAssetID          string
	Simulated           bool
	NeedsReconciliation bool
	ReconciledAt        *time.Time
	ReconcileNote       string
	AttemptsJSON        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Terminal reports whether the job has an outcome.
func (j Job) Terminal() bool { return j.Outcome != "" }

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(raw sql.NullString) *time.Time {
	t := parseTime(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
