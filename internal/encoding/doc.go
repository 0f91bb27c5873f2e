// Package encoding wraps the external encoders (cjxl, ImageMagick, ffmpeg,
// drapto) behind a single Encoder interface and implements the per-file
// strategy: which encoder to try first, when to fall back, how outputs are
// validated, and when a size regression is retried or skipped.
//
// Adapters never touch the source file and write exactly one output. The
// Strategy leaves at most one promoted file in the job work directory.
package encoding
