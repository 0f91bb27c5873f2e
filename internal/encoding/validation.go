package encoding

import (
	"context"
	"fmt"
	"math"
	"time"

	"reclaim/internal/fileutil"
	"reclaim/internal/media/ffprobe"
	"reclaim/internal/media/format"
)

// ProbeFunc inspects a media file; ffprobe.Inspect in production.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Validator checks that an encoder output is a plausible file of the expected
// format before anything is uploaded.
type Validator struct {
	probe   ProbeFunc
	binary  string
	timeout time.Duration
}

// NewValidator constructs a Validator. A nil probe selects ffprobe.Inspect.
func NewValidator(probe ProbeFunc, ffprobeBinary string, timeout time.Duration) *Validator {
	if probe == nil {
		probe = ffprobe.Inspect
	}
	return &Validator{probe: probe, binary: ffprobeBinary, timeout: timeout}
}

// Validate confirms path exists, is non-empty, and carries the magic bytes of
// expected. Video containers must also report a positive duration and at
// least one video stream. Failures wrap ErrInvalidOutput.
func (v *Validator) Validate(ctx context.Context, path string, expected format.Format) error {
	size, err := fileutil.Size(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if size == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidOutput, path)
	}
	detected, err := format.DetectFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if detected != expected {
		return fmt.Errorf("%w: expected %s, found %s", ErrInvalidOutput, expected, detected)
	}
	if !expected.IsVideoContainer() {
		return nil
	}

	probeCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	result, err := v.probe(probeCtx, v.binary, path)
	if err != nil {
		return fmt.Errorf("%w: probe: %v", ErrInvalidOutput, err)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return fmt.Errorf("%w: duration %q is not positive", ErrInvalidOutput, result.Format.Duration)
	}
	if result.VideoStreamCount() == 0 {
		return fmt.Errorf("%w: no video stream", ErrInvalidOutput)
	}
	return nil
}

// SourceCodec returns the first video stream codec of a source file.
func (v *Validator) SourceCodec(ctx context.Context, path string) (string, error) {
	probeCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	result, err := v.probe(probeCtx, v.binary, path)
	if err != nil {
		return "", err
	}
	return result.VideoCodec(), nil
}
