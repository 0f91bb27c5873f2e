// Package queue is the run ledger: a SQLite database recording every batch
// run and every per-asset job, the stage each job reached, and its outcome.
//
// The ledger survives crashes. On the next start, jobs left mid-pipeline are
// marked interrupted; those that may have left a new asset on the server are
// flagged for reconciliation, and their assets are excluded from later runs
// until an operator resolves them.
//
// Schema changes bump schemaVersion in schema.go; users delete the ledger to
// adopt a new schema.
package queue
