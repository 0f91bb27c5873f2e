// Package logging assembles structured slog loggers and formatting helpers used
// across reclaim.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run, job, asset, and stage identifiers. A no-op logger is
// provided for tests and for wiring code that must not fail.
package logging
