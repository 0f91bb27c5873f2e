// Package logs reads and prunes the files reclaim leaves in log_dir.
//
// Last and Follow back `reclaim logs`: the former returns the final lines of
// a run log with bounded memory, the latter polls for appended lines until
// its context ends. Prune enforces logging.retention_days on per-run logs and
// reports at the start of each run.
package logs
