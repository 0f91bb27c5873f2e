// Package report aggregates per-asset job outcomes into the run report that
// operators audit after a run: counts, byte totals, and every skip or failure
// with its reason.
package report

import (
	"sort"
	"time"

	"reclaim/internal/conversion"
	"reclaim/internal/encoding"
	"reclaim/internal/immich"
)

// Entry is one asset's line in the report.
type Entry struct {
	// Index is the asset's position in the worklist; entries are reported in
	// this order regardless of which worker finished first.
	Index               int                `json:"index"`
	JobID               string             `json:"job_id,omitempty"`
	AssetID             string             `json:"asset_id"`
	AssetType           string             `json:"asset_type"`
	FileName            string             `json:"file_name"`
	Outcome             conversion.Outcome `json:"outcome"`
	Reason              conversion.Reason  `json:"reason,omitempty"`
	Detail              string             `json:"detail,omitempty"`
	FailedStage         conversion.Stage   `json:"failed_stage,omitempty"`
	SourceFormat        string             `json:"source_format,omitempty"`
	OutputFormat        string             `json:"output_format,omitempty"`
	InputBytes          int64              `json:"input_bytes"`
	OutputBytes         int64              `json:"output_bytes"`
	NewAssetID          string             `json:"new_asset_id,omitempty"`
	Simulated           bool               `json:"simulated,omitempty"`
	NeedsReconciliation bool               `json:"needs_reconciliation,omitempty"`
	Attempts            []encoding.Attempt `json:"attempts,omitempty"`
	Duration            time.Duration      `json:"duration_ns"`
}

// EntryFromJob converts a finished job.
func EntryFromJob(index int, job *conversion.Job) Entry {
	return Entry{
		Index:               index,
		JobID:               job.ID,
		AssetID:             job.Asset.ID,
		AssetType:           job.Asset.Type,
		FileName:            job.Asset.OriginalFileName,
		Outcome:             job.Outcome,
		Reason:              job.Reason,
		Detail:              job.Detail,
		FailedStage:         failedStage(job),
		SourceFormat:        job.SourceFormat,
		OutputFormat:        job.OutputFormat(),
		InputBytes:          job.InputBytes,
		OutputBytes:         job.OutputBytes(),
		NewAssetID:          job.NewAssetID,
		Simulated:           job.Simulated,
		NeedsReconciliation: job.NeedsReconciliation,
		Attempts:            job.Attempts,
		Duration:            job.Duration(),
	}
}

func failedStage(job *conversion.Job) conversion.Stage {
	if job.Outcome == conversion.OutcomeConverted {
		return ""
	}
	return job.FailedStage
}

// SkippedEntry records an asset skipped before any job was created.
func SkippedEntry(index int, asset immich.Asset, reason conversion.Reason, detail string) Entry {
	return Entry{
		Index:      index,
		AssetID:    asset.ID,
		AssetType:  asset.Type,
		FileName:   asset.OriginalFileName,
		Outcome:    conversion.OutcomeSkipped,
		Reason:     reason,
		Detail:     detail,
		InputBytes: asset.FileSize(),
	}
}

// Totals are the aggregate counters of a run. Byte totals cover converted
// assets only.
type Totals struct {
	Total          int   `json:"total"`
	Converted      int   `json:"converted"`
	Skipped        int   `json:"skipped"`
	Failed         int   `json:"failed"`
	Reconciliation int   `json:"needs_reconciliation"`
	InputBytes     int64 `json:"input_bytes"`
	OutputBytes    int64 `json:"output_bytes"`
}

// SavedBytes is the storage reclaimed by converted assets.
func (t Totals) SavedBytes() int64 { return t.InputBytes - t.OutputBytes }

// SavedPercent is SavedBytes relative to InputBytes.
func (t Totals) SavedPercent() float64 {
	if t.InputBytes == 0 {
		return 0
	}
	return float64(t.SavedBytes()) / float64(t.InputBytes) * 100
}

// ReasonCount is the number of entries sharing an outcome and reason.
type ReasonCount struct {
	Outcome conversion.Outcome `json:"outcome"`
	Reason  conversion.Reason  `json:"reason"`
	Count   int                `json:"count"`
}

// Report is the result of one run. It is not safe for concurrent use; the
// worker pool feeds it from a single collector.
type Report struct {
	RunID       string        `json:"run_id"`
	DryRun      bool          `json:"dry_run"`
	Concurrency int           `json:"concurrency"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Scanned     int           `json:"scanned"`
	Entries     []Entry       `json:"entries"`
	Totals      Totals        `json:"totals"`
	Reasons     []ReasonCount `json:"reasons"`
}

// New starts an empty report.
func New(runID string, dryRun bool, concurrency int, startedAt time.Time) *Report {
	return &Report{RunID: runID, DryRun: dryRun, Concurrency: concurrency, StartedAt: startedAt}
}

// Add appends an entry and updates the totals.
func (r *Report) Add(e Entry) {
	r.Entries = append(r.Entries, e)
	r.Totals.Total++
	switch e.Outcome {
	case conversion.OutcomeConverted:
		r.Totals.Converted++
		r.Totals.InputBytes += e.InputBytes
		r.Totals.OutputBytes += e.OutputBytes
	case conversion.OutcomeSkipped:
		r.Totals.Skipped++
	case conversion.OutcomeFailed:
		r.Totals.Failed++
	}
	if e.NeedsReconciliation {
		r.Totals.Reconciliation++
	}
}

// Finish orders entries by worklist index and computes the reason summary.
func (r *Report) Finish(at time.Time) {
	r.FinishedAt = at
	sort.SliceStable(r.Entries, func(i, j int) bool { return r.Entries[i].Index < r.Entries[j].Index })

	counts := make(map[ReasonCount]int)
	for _, e := range r.Entries {
		if e.Outcome == conversion.OutcomeConverted {
			continue
		}
		counts[ReasonCount{Outcome: e.Outcome, Reason: e.Reason}]++
	}
	r.Reasons = r.Reasons[:0]
	for key, n := range counts {
		key.Count = n
		r.Reasons = append(r.Reasons, key)
	}
	sort.Slice(r.Reasons, func(i, j int) bool {
		a, b := r.Reasons[i], r.Reasons[j]
		if a.Outcome != b.Outcome {
			return a.Outcome > b.Outcome
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
}

// Duration is the run's wall-clock time.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Problems returns the skipped and failed entries in worklist order.
func (r *Report) Problems() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Outcome != conversion.OutcomeConverted {
			out = append(out, e)
		}
	}
	return out
}

// Outcomes maps asset ID to outcome and reason, for comparing runs.
func (r *Report) Outcomes() map[string]string {
	out := make(map[string]string, len(r.Entries))
	for _, e := range r.Entries {
		out[e.AssetID] = string(e.Outcome) + "/" + string(e.Reason)
	}
	return out
}
