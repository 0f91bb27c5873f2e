package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"reclaim/internal/conversion"
	"reclaim/internal/encoding"
	"reclaim/internal/immich"
	"reclaim/internal/media/format"
	"reclaim/internal/queue"
	"reclaim/internal/report"
	"reclaim/internal/workflow"
)

// seedLedger records one finished run with a report, plus a job that needs
// reconciliation.
func seedLedger(t *testing.T, env *cliTestEnv) {
	t.Helper()
	ctx := context.Background()
	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	defer store.Close()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.BeginRun(ctx, queue.Run{ID: "run-a", StartedAt: started, Concurrency: 2}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	job := queue.Job{ID: "job-stuck", RunID: "run-a", AssetID: "asset-9", AssetType: "VIDEO", FileName: "clip.mov", Stage: "DELETING_ORIGINAL"}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job.Outcome = queue.OutcomeFailed
	job.Reason = "DeleteError"
	job.NewAssetID = "new-asset-9"
	job.NeedsReconciliation = true
	if err := store.FinishJob(ctx, job); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	totals := queue.RunTotals{Total: 3, Converted: 1, Skipped: 1, Failed: 1, InputBytes: 4 << 20, OutputBytes: 1 << 20}
	if err := store.FinishRun(ctx, "run-a", queue.RunCompleted, totals, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	rep := report.New("run-a", false, 2, started)
	rep.Add(report.SkippedEntry(0, immich.Asset{ID: "asset-1", Type: "IMAGE", OriginalFileName: "old.jxl"}, conversion.ReasonAlreadyTargetFormat, "already JPEG XL"))
	rep.Add(report.EntryFromJob(1, &conversion.Job{
		ID:           "job-ok",
		Asset:        immich.Asset{ID: "asset-2", Type: "IMAGE", OriginalFileName: "beach.png"},
		Stage:        conversion.StageDone,
		Outcome:      conversion.OutcomeConverted,
		InputBytes:   4 << 20,
		SourceFormat: "png",
		Output:       &encoding.Output{Size: 1 << 20, Format: format.JXL},
	}))
	rep.Finish(started.Add(90 * time.Second))
	if err := rep.WriteJSON(workflow.ReportPath(env.cfg.Paths.LogDir, "run-a")); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestHistoryListsRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history on empty ledger: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	seedLedger(t, env)
	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "run-a")
	requireContains(t, out, "completed")
	requireContains(t, out, "apply")
	requireContains(t, out, "3.0 MiB")

	out, _, err = runCLI(t, []string{"--json", "history"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []runView
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history json: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" || runs[0].Converted != 1 || runs[0].FinishedAt == nil {
		t.Fatalf("unexpected history %#v", runs)
	}
}

func TestReportShowsLatestRun(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"report"}, env.configPath); err == nil {
		t.Fatal("expected report without runs to fail")
	}
	seedLedger(t, env)

	out, _, err := runCLI(t, []string{"report", "--entries"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "Run run-a (apply, 2 workers)")
	requireContains(t, out, "beach.png")
	requireContains(t, out, "old.jxl")

	if _, _, err := runCLI(t, []string{"report", "missing-run"}, env.configPath); err == nil {
		t.Fatal("expected unknown run to fail")
	}
}

func TestReconcileListAndResolve(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"reconcile", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile list: %v", err)
	}
	requireContains(t, out, "No assets need reconciliation")

	seedLedger(t, env)
	out, _, err = runCLI(t, []string{"reconcile", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile list: %v", err)
	}
	requireContains(t, out, "job-stuck")
	requireContains(t, out, "new-asset-9")
	requireContains(t, out, "DELETING_ORIGINAL")

	out, _, err = runCLI(t, []string{"reconcile", "resolve", "job-stuck", "--note", "trashed by hand"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile resolve: %v", err)
	}
	requireContains(t, out, "Job job-stuck resolved")

	out, _, err = runCLI(t, []string{"reconcile", "resolve", "job-stuck"}, env.configPath)
	if err == nil {
		t.Fatal("expected second resolve to fail")
	}
	requireContains(t, out, "not found or already resolved")

	out, _, err = runCLI(t, []string{"--json", "reconcile", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile list --json: %v", err)
	}
	var pending []reconcileView
	if err := json.Unmarshal([]byte(out), &pending); err != nil {
		t.Fatalf("decode reconcile json: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %#v", pending)
	}
}

func TestLogsPrintsRunLogTail(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"logs"}, env.configPath); err == nil {
		t.Fatal("expected logs without runs to fail")
	}

	logger, _, err := workflow.NewRunLog(env.cfg).Open("run-logs", time.Now())
	if err != nil {
		t.Fatalf("open run log: %v", err)
	}
	logger.Info("asset processed", "asset_id", "asset-1")
	logger.Info("asset processed", "asset_id", "asset-2")

	out, _, err := runCLI(t, []string{"logs", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "asset-2")
	requireNotContains(t, out, "asset-1")

	out, _, err = runCLI(t, []string{"logs", "run-logs", "-n", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("logs run-logs: %v", err)
	}
	requireContains(t, out, "asset-1")
	requireContains(t, out, "\"run_id\":\"run-logs\"")
}
