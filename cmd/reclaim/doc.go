// Package main hosts the reclaim CLI entrypoint and command graph.
//
// The Cobra command tree wraps the batch run, preflight checks, the run
// ledger (history, reports, reconciliation), work-directory maintenance, and
// configuration scaffolding. Configuration resolution happens once per
// invocation in commandContext so subcommands only deal with presentation.
//
// Keep this package lean: new behaviour belongs in the internal packages and
// is surfaced here through a command or flag.
package main
