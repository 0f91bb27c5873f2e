// Package immich is a small client for the Immich HTTP API covering the calls
// the conversion pipeline needs: paged metadata search, original download,
// upload, asset-data copy, existence check, and trash/hard delete.
//
// Only idempotent reads are retried. Uploads, copies, and deletes are sent
// once; the pipeline decides how to compensate.
package immich
