// Package preflight provides readiness checks for the library server, the
// external encoders, and the filesystem paths reclaim depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll before scanning. If a required check
//     fails, the run stops before any asset is touched.
//   - The CLI "reclaim check" command prints every result.
//
// Checks for features that are not configured are skipped.
package preflight
