// Package workflow runs one batch: it recovers what a killed process left
// behind, builds the worklist from a library scan, fans the assets out to a
// bounded pool of pipeline workers, and folds every job outcome into the run
// report and the ledger.
//
// A run has no cross-job cancellation. One job's failure never aborts its
// siblings; only a cancelled context stops dispatch, after which in-flight
// jobs finish their current stage and are recorded as interrupted.
package workflow
