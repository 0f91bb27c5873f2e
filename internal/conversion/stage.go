package conversion

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is the position of a Job in the pipeline.
type Stage string

const (
	StagePending          Stage = "PENDING"
	StageDownloading      Stage = "DOWNLOADING"
	StageTranscoding      Stage = "TRANSCODING"
	StageValidating       Stage = "VALIDATING"
	StageUploading        Stage = "UPLOADING"
	StageCopyingMetadata  Stage = "COPYING_METADATA"
	StageVerifying        Stage = "VERIFYING"
	StageDeletingOriginal Stage = "DELETING_ORIGINAL"
	StageDone             Stage = "DONE"
	StageSkipped          Stage = "SKIPPED"
	StageFailed           Stage = "FAILED"
)

// pipeline lists the working stages in execution order.
var pipeline = []Stage{
	StagePending,
	StageDownloading,
	StageTranscoding,
	StageValidating,
	StageUploading,
	StageCopyingMetadata,
	StageVerifying,
	StageDeletingOriginal,
	StageDone,
}

// Terminal reports whether no further stage follows.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageSkipped || s == StageFailed
}

// Mutating reports whether the stage changes the library.
func (s Stage) Mutating() bool {
	return s.index() >= StageUploading.index()
}

// Label renders the stage for humans, e.g. "Copying Metadata".
func (s Stage) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(string(s)), "_", " "))
}

func (s Stage) index() int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s on success. A dry run ends after
// validation. Terminal and unknown stages map to themselves.
func Next(s Stage, dryRun bool) Stage {
	if s.Terminal() {
		return s
	}
	if dryRun && s == StageValidating {
		return StageDone
	}
	i := s.index()
	if i < 0 || i+1 >= len(pipeline) {
		return s
	}
	return pipeline[i+1]
}

// FailurePolicy returns the failure reason for a stage and whether the newly
// uploaded asset must be hard-deleted before the job fails. Transcoding has no
// fixed reason; the strategy's verdict supplies it.
func FailurePolicy(s Stage) (Reason, bool) {
	switch s {
	case StagePending:
		return ReasonWorkDirError, false
	case StageDownloading:
		return ReasonDownloadError, false
	case StageTranscoding:
		return ReasonToolExecutionFailed, false
	case StageValidating:
		return ReasonInvalidOutput, false
	case StageUploading:
		return ReasonUploadError, false
	case StageCopyingMetadata:
		return ReasonMetadataError, true
	case StageVerifying:
		return ReasonVerifyError, true
	case StageDeletingOriginal:
		return ReasonDeleteError, false
	default:
		return "", false
	}
}
