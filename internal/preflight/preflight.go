package preflight

import (
	"context"

	"reclaim/internal/config"
	"reclaim/internal/deps"
)

// MinFreeBytes is the free space the work directory must have before a run.
var MinFreeBytes uint64 = 2 << 30

// Result reports the outcome of a single preflight check. Optional failures
// are shown but do not block a run.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Pinger is the connection test of the library client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes every applicable check. A nil pinger skips the library check.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinFreeBytes))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckLedger(ctx, cfg.Paths.LedgerPath))

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromDependency(status))
	}

	if pinger != nil {
		results = append(results, CheckLibrary(ctx, pinger))
	}
	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, Result{Name: "Notifications", Passed: true, Optional: true, Detail: cfg.Notifications.NtfyTopic})
	}
	return results
}

// Failures returns the failed checks that block a run.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromDependency(s deps.Status) Result {
	detail := s.Path
	if !s.Available {
		detail = s.Detail
	}
	if s.Description != "" {
		detail += " (" + s.Description + ")"
	}
	return Result{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: detail}
}
