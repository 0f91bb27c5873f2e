// Package conversion runs the per-asset pipeline that replaces one library
// asset with a smaller encoding.
//
// A Job moves through explicit stages: download, transcode, validate, upload,
// copy metadata, verify, and finally trash the original. Each stage has one
// handler and one failure transition (FailurePolicy). The original asset is
// only deleted after the replacement has been uploaded, has received the
// original's metadata, and has been read back from the library. Failures after
// the upload hard-delete the replacement before the job fails. The job's
// working directory is released on every exit path.
package conversion
