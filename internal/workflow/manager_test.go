package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"reclaim/internal/config"
	"reclaim/internal/conversion"
	"reclaim/internal/encoding"
	"reclaim/internal/immich"
	"reclaim/internal/media/format"
	"reclaim/internal/notifications"
	"reclaim/internal/preflight"
	"reclaim/internal/queue"
	"reclaim/internal/services"
	"reclaim/internal/staging"
	"reclaim/internal/testsupport"
	"reclaim/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type harness struct {
	cfg      *config.Config
	lib      *testsupport.FakeLibrary
	store    *queue.Store
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newHarness(t *testing.T, lib *testsupport.FakeLibrary, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	area, err := staging.NewArea(cfg.Paths.WorkDir)
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	strategy := testsupport.NewStrategy(encoding.RetryPolicy{Enabled: true, ImageDistanceRetry: 2, VideoCRFRetry: 40})
	orch := conversion.New(lib, strategy, strategy.Validator(), area,
		conversion.WithDryRun(cfg.Run.DryRun),
		conversion.WithRecorder(workflow.NewLedgerRecorder(store)),
	)
	notifier := &recordingNotifier{}
	runs := 0
	manager := workflow.NewManager(cfg, lib, orch, store, nil,
		workflow.WithNotifier(notifier),
		workflow.WithChecks(nil),
		workflow.WithRunIDGenerator(func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}),
	)
	return &harness{cfg: cfg, lib: lib, store: store, notifier: notifier, manager: manager}
}

func image(id string) immich.Asset {
	return immich.Asset{
		ID:               id,
		Type:             immich.TypeImage,
		OriginalFileName: id + ".JPG",
		OriginalMimeType: "image/jpeg",
		DeviceID:         "phone",
		FileCreatedAt:    "2024-05-01T10:00:00.000Z",
		FileModifiedAt:   "2024-05-01T10:00:00.000Z",
	}
}

func video(id string) immich.Asset {
	return immich.Asset{
		ID:               id,
		Type:             immich.TypeVideo,
		OriginalFileName: id + ".mov",
		OriginalMimeType: "video/quicktime",
		DeviceID:         "phone",
	}
}

func jxlImage(id string) immich.Asset {
	a := image(id)
	a.OriginalFileName = id + ".jxl"
	a.OriginalMimeType = "image/jxl"
	return a
}

// mixedLibrary holds convertible images and videos, one JXL image, and one
// image whose upload fails.
func mixedLibrary() *testsupport.FakeLibrary {
	lib := testsupport.NewFakeLibrary()
	for i := range 6 {
		lib.Add(image(fmt.Sprintf("img%d", i)), testsupport.MediaBytes(format.JPEG, 2000+i*100))
	}
	lib.Add(jxlImage("already"), testsupport.MediaBytes(format.JXL, 800))
	lib.Add(video("clip0"), testsupport.MediaBytes(format.MP4, 4000))
	lib.Add(video("clip1"), testsupport.MediaBytes(format.MP4, 5000))
	lib.Fail(testsupport.OpUpload, "img3", testsupport.ErrInjected)
	return lib
}

func TestExecuteConvertsLibrary(t *testing.T) {
	h := newHarness(t, mixedLibrary(), testsupport.WithApply(), testsupport.WithConcurrency(3))

	rep, err := h.manager.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := struct{ total, converted, skipped, failed int }{9, 7, 1, 1}
	got := struct{ total, converted, skipped, failed int }{rep.Totals.Total, rep.Totals.Converted, rep.Totals.Skipped, rep.Totals.Failed}
	if got != want {
		t.Fatalf("totals = %+v, want %+v", got, want)
	}
	if rep.RunID != "run-1" || rep.DryRun || rep.Concurrency != 3 {
		t.Fatalf("report header = %+v", rep)
	}
	if rep.Totals.SavedBytes() <= 0 {
		t.Fatalf("expected savings, got %d", rep.Totals.SavedBytes())
	}

	// Entries follow scan order: images, then videos.
	var order []string
	for _, e := range rep.Entries {
		order = append(order, e.AssetID)
	}
	wantOrder := []string{"img0", "img1", "img2", "img3", "img4", "img5", "already", "clip0", "clip1"}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Fatalf("entry order = %v, want %v", order, wantOrder)
	}

	for _, id := range []string{"img0", "img5", "clip1"} {
		orig, _ := h.lib.Get(id)
		if !orig.Trashed {
			t.Errorf("original %s not trashed", id)
		}
		replacement, ok := h.lib.Get("new-" + id)
		if !ok || replacement.MetadataFrom != id {
			t.Errorf("replacement for %s = %+v", id, replacement)
		}
	}
	if orig, _ := h.lib.Get("img3"); orig.Trashed {
		t.Fatal("failed asset must keep its original")
	}
	if _, ok := h.lib.Get("new-img3"); ok {
		t.Fatal("failed upload left a replacement")
	}
	if calls := h.lib.CallsFor("already"); len(calls) != 0 {
		t.Fatalf("pre-skipped asset touched: %v", calls)
	}

	run, err := h.store.GetRun(context.Background(), "run-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != queue.RunCompleted || run.Totals.Converted != 7 || run.Totals.Failed != 1 || run.FinishedAt == nil {
		t.Fatalf("ledger run = %+v", run)
	}

	jobs, err := h.store.RunJobs(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("RunJobs: %v", err)
	}
	if len(jobs) != 8 {
		t.Fatalf("ledger jobs = %d, want 8 (pre-skips have no job)", len(jobs))
	}
	for _, job := range jobs {
		switch job.AssetID {
		case "img3":
			if job.Outcome != queue.OutcomeFailed || job.Reason != string(conversion.ReasonUploadError) || job.Stage != string(conversion.StageUploading) {
				t.Errorf("failed job = %+v", job)
			}
		default:
			if job.Outcome != queue.OutcomeConverted || job.NewAssetID != "new-"+job.AssetID || job.AttemptsJSON == "" {
				t.Errorf("converted job = %+v", job)
			}
		}
	}

	if _, err := os.Stat(workflow.ReportPath(h.cfg.Paths.LogDir, "run-1")); err != nil {
		t.Fatalf("report not written: %v", err)
	}
	logs, _ := filepath.Glob(filepath.Join(h.cfg.Paths.LogDir, "runs", "*-run-1.log"))
	if len(logs) != 1 {
		t.Fatalf("run logs = %v", logs)
	}
	if entries, _ := os.ReadDir(h.cfg.Paths.WorkDir); len(entries) != 0 {
		t.Fatalf("work dir not empty: %d entries", len(entries))
	}

	wantEvents := []notifications.Event{notifications.EventRunStarted, notifications.EventRunCompleted, notifications.EventReconciliationNeeded}
	if events := h.notifier.Events(); !reflect.DeepEqual(events, wantEvents) {
		t.Fatalf("events = %v, want %v", events, wantEvents)
	}
}

func TestOutcomesIndependentOfConcurrency(t *testing.T) {
	outcomes := make([]map[string]string, 0, 2)
	states := make([][]string, 0, 2)
	for _, c := range []int{1, 4} {
		lib := mixedLibrary()
		h := newHarness(t, lib, testsupport.WithApply(), testsupport.WithConcurrency(c))
		rep, err := h.manager.Execute(context.Background())
		if err != nil {
			t.Fatalf("Execute with %d workers: %v", c, err)
		}
		outcomes = append(outcomes, rep.Outcomes())

		var state []string
		for _, id := range lib.IDs() {
			a, _ := lib.Get(id)
			state = append(state, fmt.Sprintf("%s trashed=%t from=%s", id, a.Trashed, a.MetadataFrom))
		}
		states = append(states, state)
	}
	if !reflect.DeepEqual(outcomes[0], outcomes[1]) {
		t.Fatalf("outcomes differ:\n1 worker:  %v\n4 workers: %v", outcomes[0], outcomes[1])
	}
	if !reflect.DeepEqual(states[0], states[1]) {
		t.Fatalf("library state differs:\n1 worker:  %v\n4 workers: %v", states[0], states[1])
	}
}

func TestDryRunLeavesLibraryUntouched(t *testing.T) {
	lib := mixedLibrary()
	h := newHarness(t, lib, testsupport.WithConcurrency(2))

	rep, err := h.manager.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !rep.DryRun || rep.Totals.Converted != 8 {
		t.Fatalf("dry run totals = %+v", rep.Totals)
	}
	for _, e := range rep.Entries {
		if e.Outcome == conversion.OutcomeConverted && (!e.Simulated || e.NewAssetID != "") {
			t.Fatalf("dry run entry = %+v", e)
		}
	}
	for _, call := range lib.Calls() {
		op, _, _ := strings.Cut(call, " ")
		switch op {
		case testsupport.OpPing, testsupport.OpList, testsupport.OpDownload:
		default:
			t.Fatalf("dry run made a mutating call: %s", call)
		}
	}
	run, _ := h.store.GetRun(context.Background(), rep.RunID)
	if run == nil || !run.DryRun {
		t.Fatalf("ledger run = %+v", run)
	}
}

func TestMaxAssetsTruncatesBeforeDispatch(t *testing.T) {
	lib := mixedLibrary()
	h := newHarness(t, lib, testsupport.WithApply())
	h.cfg.Run.MaxAssets = 2

	rep, err := h.manager.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rep.Totals.Total != 2 || rep.Scanned != 2 {
		t.Fatalf("totals = %+v scanned=%d", rep.Totals, rep.Scanned)
	}
	downloads := 0
	for _, call := range lib.Calls() {
		if strings.HasPrefix(call, testsupport.OpDownload+" ") {
			downloads++
		}
	}
	if downloads != 2 {
		t.Fatalf("downloads = %d, want 2", downloads)
	}
}

func TestExecuteRecoversInterruptedRun(t *testing.T) {
	lib := testsupport.NewFakeLibrary()
	lib.Add(image("a"), testsupport.MediaBytes(format.JPEG, 2000))
	lib.Add(image("b"), testsupport.MediaBytes(format.JPEG, 2000))
	h := newHarness(t, lib, testsupport.WithApply())
	ctx := context.Background()

	// A killed run left asset a mid-upload and its work dir behind.
	testsupport.MustBeginRun(t, h.store, "killed")
	job := queue.Job{ID: "job-old", RunID: "killed", AssetID: "a", AssetType: immich.TypeImage, Stage: string(conversion.StagePending)}
	if err := h.store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.Stage = string(conversion.StageUploading)
	if err := h.store.UpdateStage(ctx, job); err != nil {
		t.Fatal(err)
	}
	h.cfg.Run.StaleJobHours = 0
	leftover := filepath.Join(h.cfg.Paths.WorkDir, "job-old")
	testsupport.WriteFile(t, filepath.Join(leftover, "original.jpg"), 10)

	rep, err := h.manager.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("stale work dir not removed: %v", err)
	}
	old, _ := h.store.GetRun(ctx, "killed")
	if old == nil || old.Status != queue.RunInterrupted {
		t.Fatalf("killed run = %+v", old)
	}
	pending, err := h.store.PendingReconciliation(ctx)
	if err != nil || len(pending) != 1 || pending[0].AssetID != "a" {
		t.Fatalf("pending reconciliation = %+v, %v", pending, err)
	}

	got := rep.Outcomes()
	if got["a"] != "SKIPPED/PendingReconciliation" || got["b"] != "CONVERTED/" {
		t.Fatalf("outcomes = %v", got)
	}
	if calls := lib.CallsFor("a"); len(calls) != 0 {
		t.Fatalf("asset awaiting reconciliation was touched: %v", calls)
	}
}

func TestExecuteStopsWhenConnectionFails(t *testing.T) {
	lib := mixedLibrary()
	lib.Fail(testsupport.OpPing, "", services.Wrap(services.ErrAuth, "immich", "search", "HTTP 401", nil))
	h := newHarness(t, lib, testsupport.WithApply())

	rep, err := h.manager.Execute(context.Background())
	if err == nil || rep != nil {
		t.Fatalf("expected connection failure, got report=%v err=%v", rep, err)
	}
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	for _, call := range lib.Calls() {
		if call != testsupport.OpPing+" " {
			t.Fatalf("unexpected call after failed connection test: %s", call)
		}
	}
	if runs, _ := h.store.History(context.Background(), 10); len(runs) != 0 {
		t.Fatalf("run recorded despite failed connection: %+v", runs)
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0] != notifications.EventRunFailed {
		t.Fatalf("events = %v", events)
	}
}

func TestExecuteStopsOnPreflightFailure(t *testing.T) {
	lib := mixedLibrary()
	h := newHarness(t, lib, testsupport.WithApply())
	h.manager = workflow.NewManager(h.cfg, lib, nil, h.store, nil,
		workflow.WithNotifier(h.notifier),
		workflow.WithChecks(func(context.Context, *config.Config) []preflight.Result {
			return []preflight.Result{
				{Name: "cjxl", Optional: true, Detail: "missing"},
				{Name: "ImageMagick", Detail: "binary \"magick\" not found"},
			}
		}),
	)

	_, err := h.manager.Execute(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls := lib.Calls(); len(calls) != 0 {
		t.Fatalf("library touched after failed preflight: %v", calls)
	}
}

func TestExecuteStopsWhenScanFails(t *testing.T) {
	lib := mixedLibrary()
	lib.Fail(testsupport.OpList, immich.TypeVideo, testsupport.ErrInjected)
	h := newHarness(t, lib, testsupport.WithApply())

	if _, err := h.manager.Execute(context.Background()); !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected scan error, got %v", err)
	}
	for _, call := range lib.Calls() {
		if strings.HasPrefix(call, testsupport.OpDownload+" ") {
			t.Fatalf("asset downloaded from a partial scan: %s", call)
		}
	}
}

func TestRunWithCancelledContextRecordsInterruption(t *testing.T) {
	lib := mixedLibrary()
	h := newHarness(t, lib, testsupport.WithApply(), testsupport.WithConcurrency(2))
	wl, err := workflow.BuildWorklist(context.Background(), lib, h.cfg, nil, nil)
	if err != nil {
		t.Fatalf("BuildWorklist: %v", err)
	}

	ctx, cancel := context.WithCancel(services.WithRunID(context.Background(), "cancelled"))
	cancel()
	rep, err := h.manager.Run(ctx, wl)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if rep == nil || rep.Totals.Total != wl.Len() || rep.Totals.Converted != 0 {
		t.Fatalf("report = %+v", rep)
	}
	for _, e := range rep.Entries {
		if e.AssetID == "already" {
			continue
		}
		if e.Reason != conversion.ReasonInterrupted {
			t.Fatalf("entry %s reason = %s", e.AssetID, e.Reason)
		}
	}
	run, _ := h.store.GetRun(context.Background(), "cancelled")
	if run == nil || run.Status != queue.RunInterrupted || run.ErrorMessage == "" {
		t.Fatalf("ledger run = %+v", run)
	}
	if events := h.notifier.Events(); events[len(events)-2] != notifications.EventRunFailed {
		t.Fatalf("events = %v", events)
	}
}
