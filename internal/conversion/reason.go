package conversion

import (
	"fmt"

	"reclaim/internal/encoding"
)

// Outcome is the terminal result of a Job.
type Outcome string

const (
	OutcomeConverted Outcome = "CONVERTED"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeFailed    Outcome = "FAILED"
)

// Reason explains a skipped or failed Job.
type Reason string

const (
	ReasonToolNotApplicable     = Reason(encoding.ReasonToolNotApplicable)
	ReasonToolExecutionFailed   = Reason(encoding.ReasonToolExecutionFailed)
	ReasonToolTimedOut          = Reason(encoding.ReasonToolTimedOut)
	ReasonInvalidOutput         = Reason(encoding.ReasonInvalidOutput)
	ReasonOutputNotSmaller      = Reason(encoding.ReasonOutputNotSmaller)
	ReasonAlreadyTargetFormat   = Reason(encoding.ReasonAlreadyTargetFormat)
	ReasonUnsupportedFormat     = Reason(encoding.ReasonUnsupportedFormat)
	ReasonDownloadError         = Reason("DownloadError")
	ReasonUploadError           = Reason("UploadError")
	ReasonMetadataError         = Reason("MetadataError")
	ReasonVerifyError           = Reason("VerifyError")
	ReasonDeleteError           = Reason("DeleteError")
	ReasonWorkDirError          = Reason("WorkDirError")
	ReasonPendingReconciliation = Reason("PendingReconciliation")
	ReasonInterrupted           = Reason("Interrupted")
)

// Failure is a job-terminating error tagged with the stage it happened in.
type Failure struct {
	Stage  Stage
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Stage, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// skip ends a job without an error; it never leaves this package.
type skip struct {
	reason Reason
	detail string
}

func (s *skip) Error() string { return fmt.Sprintf("skipped: %s: %s", s.reason, s.detail) }
