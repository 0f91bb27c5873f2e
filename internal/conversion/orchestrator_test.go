package conversion_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"reclaim/internal/conversion"
	"reclaim/internal/encoding"
	"reclaim/internal/fileutil"
	"reclaim/internal/immich"
	"reclaim/internal/media/format"
	"reclaim/internal/staging"
	"reclaim/internal/testsupport"
)

type recorder struct {
	mu       sync.Mutex
	started  []string
	stages   []conversion.Stage
	finished []conversion.Outcome
	err      error
}

func (r *recorder) JobStarted(_ context.Context, job *conversion.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, job.Asset.ID)
	return r.err
}

func (r *recorder) StageEntered(_ context.Context, job *conversion.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, job.Stage)
	return r.err
}

func (r *recorder) JobFinished(_ context.Context, job *conversion.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, job.Outcome)
	return r.err
}

type harness struct {
	lib  *testsupport.FakeLibrary
	area *staging.Area
	rec  *recorder
	orch *conversion.Orchestrator
}

func newHarness(t *testing.T, transcoder conversion.Transcoder, opts ...conversion.Option) *harness {
	t.Helper()
	area, err := staging.NewArea(filepath.Join(t.TempDir(), "work"))
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	h := &harness{lib: testsupport.NewFakeLibrary(), area: area, rec: &recorder{}}
	validator := encoding.NewValidator(testsupport.ProbeReturning("h264", "10.0"), "ffprobe", 0)
	opts = append([]conversion.Option{conversion.WithRecorder(h.rec)}, opts...)
	h.orch = conversion.New(h.lib, transcoder, validator, area, opts...)
	t.Cleanup(func() { assertNoJobDirs(t, area.Root()) })
	return h
}

func assertNoJobDirs(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty work root, found %d entries", len(entries))
	}
}

func imageAsset(id string) immich.Asset {
	return immich.Asset{
		ID:               id,
		Type:             immich.TypeImage,
		OriginalFileName: id + ".JPG",
		DeviceID:         "phone",
		FileCreatedAt:    "2024-05-01T10:00:00.000Z",
		FileModifiedAt:   "2024-05-02T10:00:00.000Z",
	}
}

func retryPolicy() encoding.RetryPolicy {
	return encoding.RetryPolicy{Enabled: true, ImageDistanceRetry: 2, VideoCRFRetry: 40}
}

func imageStrategy(image, repack encoding.Encoder, policy encoding.RetryPolicy) *encoding.Strategy {
	validator := encoding.NewValidator(testsupport.ProbeReturning("h264", "10.0"), "ffprobe", 0)
	enc := encoding.Encoders{Repack: repack, Image: image, Video: &testsupport.FakeEncoder{Tool: "ffmpeg", Target: format.MP4, Ratio: 0.5}}
	return encoding.NewStrategy(enc, validator, encoding.Params{ImageDistance: 1, VideoCRF: 36}, policy, nil)
}

func assertOriginalUntouched(t *testing.T, lib *testsupport.FakeLibrary, id string) {
	t.Helper()
	original, ok := lib.Get(id)
	if !ok {
		t.Fatalf("original %s was deleted", id)
	}
	if original.Trashed {
		t.Fatalf("original %s was trashed", id)
	}
}

func TestRunConvertsImage(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeConverted || job.Stage != conversion.StageDone {
		t.Fatalf("unexpected result %s/%s: %s", job.Outcome, job.Stage, job.Detail)
	}
	if job.Simulated || job.NeedsReconciliation {
		t.Fatalf("unexpected flags %#v", job)
	}
	if job.InputBytes != 1000 || job.OutputBytes() != 500 || job.SavedBytes() != 500 {
		t.Fatalf("unexpected sizes in=%d out=%d", job.InputBytes, job.OutputBytes())
	}
	if job.NewAssetID != "new-img-1" {
		t.Fatalf("new asset id = %q", job.NewAssetID)
	}

	original, ok := h.lib.Get("img-1")
	if !ok || !original.Trashed {
		t.Fatalf("expected original to be trashed, not hard-deleted: %#v", original)
	}
	replacement, ok := h.lib.Get("new-img-1")
	if !ok {
		t.Fatal("replacement missing")
	}
	if replacement.MetadataFrom != "img-1" {
		t.Fatalf("metadata copied from %q", replacement.MetadataFrom)
	}
	wantUpload := immich.UploadRequest{
		DeviceAssetID:  "img-1-jxl",
		DeviceID:       "phone",
		FileCreatedAt:  "2024-05-01T10:00:00.000Z",
		FileModifiedAt: "2024-05-02T10:00:00.000Z",
		Filename:       "img-1.jxl",
	}
	if replacement.Upload == nil || *replacement.Upload != wantUpload {
		t.Fatalf("upload request = %#v, want %#v", replacement.Upload, wantUpload)
	}

	wantCalls := []string{"download img-1", "upload img-1", "copy_metadata img-1", "verify new-img-1", "trash img-1"}
	if got := h.lib.Calls(); !reflect.DeepEqual(got, wantCalls) {
		t.Fatalf("calls = %v, want %v", got, wantCalls)
	}
	wantStages := []conversion.Stage{
		conversion.StageDownloading,
		conversion.StageTranscoding,
		conversion.StageValidating,
		conversion.StageUploading,
		conversion.StageCopyingMetadata,
		conversion.StageVerifying,
		conversion.StageDeletingOriginal,
	}
	if !reflect.DeepEqual(h.rec.stages, wantStages) {
		t.Fatalf("stages = %v, want %v", h.rec.stages, wantStages)
	}
	if !reflect.DeepEqual(h.rec.finished, []conversion.Outcome{conversion.OutcomeConverted}) {
		t.Fatalf("finished = %v", h.rec.finished)
	}
}

func TestRunConvertsVideo(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	asset := immich.Asset{ID: "vid-1", Type: immich.TypeVideo, OriginalFileName: "clip.mov"}
	h.lib.Add(asset, testsupport.MediaBytes(format.MP4, 2000))

	job := h.orch.Run(context.Background(), asset)

	if job.Outcome != conversion.OutcomeConverted {
		t.Fatalf("expected CONVERTED, got %s (%s)", job.Outcome, job.Detail)
	}
	if job.SourceFormat != "h264" || job.OutputFormat() != "mp4" {
		t.Fatalf("unexpected formats %q -> %q", job.SourceFormat, job.OutputFormat())
	}
	replacement, _ := h.lib.Get("new-vid-1")
	if replacement.Upload == nil || replacement.Upload.Filename != "clip.mp4" || replacement.Upload.DeviceAssetID != "vid-1-mp4" {
		t.Fatalf("unexpected upload %#v", replacement.Upload)
	}
	if len(replacement.Content) != 1000 {
		t.Fatalf("uploaded %d bytes, want 1000", len(replacement.Content))
	}
}

func TestRunSkipsWhenRetryStillLarger(t *testing.T) {
	image := &testsupport.FakeEncoder{Tool: "magick", Target: format.JXL, Sizes: []int64{1200, 1100}}
	h := newHarness(t, imageStrategy(image, nil, retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.PNG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeSkipped || job.Reason != conversion.ReasonOutputNotSmaller {
		t.Fatalf("expected SKIPPED(OutputNotSmaller), got %s(%s)", job.Outcome, job.Reason)
	}
	if job.FailedStage != conversion.StageTranscoding || len(job.Attempts) != 2 {
		t.Fatalf("unexpected job %#v", job)
	}
	if got := h.lib.Calls(); !reflect.DeepEqual(got, []string{"download img-1"}) {
		t.Fatalf("expected no upload, calls = %v", got)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunAcceptsLargerRetryWhenConfigured(t *testing.T) {
	policy := retryPolicy()
	policy.AcceptLarger = true
	image := &testsupport.FakeEncoder{Tool: "magick", Target: format.JXL, Sizes: []int64{1200, 1100}}
	h := newHarness(t, imageStrategy(image, nil, policy))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.PNG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeConverted {
		t.Fatalf("expected CONVERTED, got %s (%s)", job.Outcome, job.Detail)
	}
	replacement, ok := h.lib.Get("new-img-1")
	if !ok || len(replacement.Content) != 1100 {
		t.Fatalf("expected 1100-byte replacement, got %#v", replacement)
	}
	if job.SavedBytes() != -100 {
		t.Fatalf("saved bytes = %d", job.SavedBytes())
	}
}

func TestRunFallsBackWhenRepackNotApplicable(t *testing.T) {
	repack := &testsupport.FakeEncoder{
		Tool:   "cjxl",
		Target: format.JXL,
		Err:    &encoding.ToolError{Tool: "cjxl", Kind: encoding.ToolNotApplicable, Stderr: "progressive JPEG not supported"},
	}
	image := &testsupport.FakeEncoder{Tool: "magick", Target: format.JXL, Ratio: 0.6}
	h := newHarness(t, imageStrategy(image, repack, retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeConverted {
		t.Fatalf("expected CONVERTED, got %s (%s)", job.Outcome, job.Detail)
	}
	if len(job.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %#v", job.Attempts)
	}
	successes := 0
	for _, a := range job.Attempts {
		if a.Success {
			successes++
		}
	}
	if successes != 1 || job.Attempts[0].Kind != encoding.ToolNotApplicable || !job.Attempts[1].Success {
		t.Fatalf("unexpected attempts %#v", job.Attempts)
	}
}

func TestRunTranscodeFailure(t *testing.T) {
	image := &testsupport.FakeEncoder{
		Tool:   "magick",
		Target: format.JXL,
		Err:    &encoding.ToolError{Tool: "magick", Kind: encoding.ToolTimedOut},
	}
	h := newHarness(t, imageStrategy(image, nil, retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.PNG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeFailed || job.Reason != conversion.ReasonToolTimedOut {
		t.Fatalf("expected FAILED(ToolTimedOut), got %s(%s)", job.Outcome, job.Reason)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunSkipsAssetsAlreadyInTargetFormat(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JXL, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeSkipped || job.Reason != conversion.ReasonAlreadyTargetFormat {
		t.Fatalf("expected SKIPPED(AlreadyTargetFormat), got %s(%s)", job.Outcome, job.Reason)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunLibraryFailures(t *testing.T) {
	tests := []struct {
		name          string
		op            string
		id            string
		reason        conversion.Reason
		failedStage   conversion.Stage
		rolledBack    bool
		reconcile     bool
		replacementOK bool
		trashed       bool
	}{
		{name: "download", op: testsupport.OpDownload, id: "img-1", reason: conversion.ReasonDownloadError, failedStage: conversion.StageDownloading},
		{name: "upload", op: testsupport.OpUpload, id: "img-1", reason: conversion.ReasonUploadError, failedStage: conversion.StageUploading},
		{name: "metadata", op: testsupport.OpCopyMetadata, id: "img-1", reason: conversion.ReasonMetadataError, failedStage: conversion.StageCopyingMetadata, rolledBack: true},
		{name: "verify", op: testsupport.OpVerify, id: "new-img-1", reason: conversion.ReasonVerifyError, failedStage: conversion.StageVerifying, rolledBack: true},
		{name: "delete", op: testsupport.OpTrash, id: "img-1", reason: conversion.ReasonDeleteError, failedStage: conversion.StageDeletingOriginal, reconcile: true, replacementOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
			h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))
			h.lib.Fail(tt.op, tt.id, testsupport.ErrInjected)

			job := h.orch.Run(context.Background(), imageAsset("img-1"))

			if job.Outcome != conversion.OutcomeFailed || job.Reason != tt.reason {
				t.Fatalf("expected FAILED(%s), got %s(%s)", tt.reason, job.Outcome, job.Reason)
			}
			if job.FailedStage != tt.failedStage || job.Stage != conversion.StageFailed {
				t.Fatalf("failed stage = %s, stage = %s", job.FailedStage, job.Stage)
			}
			if !errors.Is(job.Err, testsupport.ErrInjected) {
				t.Fatalf("expected injected error, got %v", job.Err)
			}
			if job.NeedsReconciliation != tt.reconcile {
				t.Fatalf("needs reconciliation = %v, want %v", job.NeedsReconciliation, tt.reconcile)
			}

			original, ok := h.lib.Get("img-1")
			if !ok {
				t.Fatal("original must never be hard-deleted")
			}
			if original.Trashed {
				t.Fatal("original must not be trashed on failure")
			}

			hardDeletes := h.lib.CallsFor("new-img-1")
			rolledBack := len(hardDeletes) > 0 && hardDeletes[len(hardDeletes)-1] == "hard_delete new-img-1"
			if rolledBack != tt.rolledBack {
				t.Fatalf("rollback = %v, want %v (calls %v)", rolledBack, tt.rolledBack, h.lib.Calls())
			}
			_, exists := h.lib.Get("new-img-1")
			if exists != tt.replacementOK {
				t.Fatalf("replacement exists = %v, want %v", exists, tt.replacementOK)
			}
			if tt.rolledBack && job.NewAssetID != "" {
				t.Fatalf("rolled back job still references %q", job.NewAssetID)
			}
		})
	}
}

func TestRunFlagsReconciliationWhenRollbackFails(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))
	h.lib.Fail(testsupport.OpCopyMetadata, "", testsupport.ErrInjected)
	h.lib.Fail(testsupport.OpHardDelete, "", errors.New("server unavailable"))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Reason != conversion.ReasonMetadataError || !job.NeedsReconciliation {
		t.Fatalf("expected MetadataError with reconciliation, got %s %v", job.Reason, job.NeedsReconciliation)
	}
	if job.NewAssetID != "new-img-1" {
		t.Fatalf("expected the orphan id to be kept, got %q", job.NewAssetID)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunChecksumMismatchFailsDownload(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	asset := imageAsset("img-1")
	asset.Checksum = "AAAAAAAAAAAAAAAAAAAAAAAAAAA=" // 20 zero bytes
	h.lib.Add(asset, testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), asset)

	if job.Reason != conversion.ReasonDownloadError || !errors.Is(job.Err, fileutil.ErrChecksumMismatch) {
		t.Fatalf("expected checksum DownloadError, got %s: %v", job.Reason, job.Err)
	}
	if got := h.lib.Calls(); len(got) != 1 {
		t.Fatalf("expected only the download call, got %v", got)
	}
}

func TestRunDryRunStopsAfterValidation(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()), conversion.WithDryRun(true))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeConverted || !job.Simulated {
		t.Fatalf("expected simulated CONVERTED, got %s simulated=%v", job.Outcome, job.Simulated)
	}
	if job.OutputBytes() != 500 || job.NewAssetID != "" {
		t.Fatalf("unexpected dry-run job %#v", job)
	}
	if got := h.lib.Calls(); !reflect.DeepEqual(got, []string{"download img-1"}) {
		t.Fatalf("dry run touched the library: %v", got)
	}
	last := h.rec.stages[len(h.rec.stages)-1]
	if last != conversion.StageValidating {
		t.Fatalf("last stage = %s", last)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

type invalidOutputTranscoder struct{}

func (invalidOutputTranscoder) Decide(_ context.Context, _ encoding.Source, workDir string) (encoding.Decision, error) {
	path := filepath.Join(workDir, "output.jxl")
	data := testsupport.MediaBytes(format.PNG, 100)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return encoding.Decision{}, err
	}
	out := &encoding.Output{Path: path, Size: int64(len(data)), Format: format.JXL}
	return encoding.Decision{Verdict: encoding.VerdictAccepted, Output: out}, nil
}

func TestRunValidationFailure(t *testing.T) {
	h := newHarness(t, invalidOutputTranscoder{})
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeFailed || job.Reason != conversion.ReasonInvalidOutput {
		t.Fatalf("expected FAILED(InvalidOutput), got %s(%s)", job.Outcome, job.Reason)
	}
	if !errors.Is(job.Err, encoding.ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", job.Err)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := h.orch.Run(ctx, imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeFailed || job.Reason != conversion.ReasonInterrupted {
		t.Fatalf("expected FAILED(Interrupted), got %s(%s)", job.Outcome, job.Reason)
	}
	if len(h.rec.finished) != 1 {
		t.Fatalf("expected the finish to be recorded despite cancellation, got %v", h.rec.finished)
	}
	assertOriginalUntouched(t, h.lib, "img-1")
}

func TestRunWorkDirAllocationFailure(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()), conversion.WithIDGenerator(func() string { return "bad/id" }))
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeFailed || job.Reason != conversion.ReasonWorkDirError {
		t.Fatalf("expected FAILED(WorkDirError), got %s(%s)", job.Outcome, job.Reason)
	}
	if got := h.lib.Calls(); len(got) != 0 {
		t.Fatalf("expected no library calls, got %v", got)
	}
}

func TestRecorderErrorsDoNotFailJobs(t *testing.T) {
	h := newHarness(t, testsupport.NewStrategy(retryPolicy()))
	h.rec.err = errors.New("disk full")
	h.lib.Add(imageAsset("img-1"), testsupport.MediaBytes(format.JPEG, 1000))

	job := h.orch.Run(context.Background(), imageAsset("img-1"))

	if job.Outcome != conversion.OutcomeConverted {
		t.Fatalf("expected CONVERTED despite ledger errors, got %s (%s)", job.Outcome, job.Detail)
	}
}
