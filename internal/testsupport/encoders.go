package testsupport

import (
	"context"
	"os"
	"sync"

	"reclaim/internal/encoding"
	"reclaim/internal/media/ffprobe"
	"reclaim/internal/media/format"
)

// FakeEncoder is an encoding.Encoder that writes a file of its target format.
// Call n writes Sizes[n] bytes when present; otherwise the size is Ratio times
// the input size when Ratio is set, else Size. Err makes every call fail.
type FakeEncoder struct {
	Tool   string
	Target format.Format
	Size   int64
	Sizes  []int64
	Ratio  float64
	Err    error

	mu       sync.Mutex
	requests []encoding.Request
}

func (f *FakeEncoder) Name() string { return f.Tool }

func (f *FakeEncoder) Format() format.Format { return f.Target }

// Encode records req and writes the fake output.
func (f *FakeEncoder) Encode(ctx context.Context, req encoding.Request) (encoding.Output, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return encoding.Output{}, err
	}
	if f.Err != nil {
		return encoding.Output{}, f.Err
	}
	size := f.Size
	switch {
	case call < len(f.Sizes):
		size = f.Sizes[call]
	case f.Ratio > 0:
		info, err := os.Stat(req.Input)
		if err != nil {
			return encoding.Output{}, err
		}
		size = int64(float64(info.Size()) * f.Ratio)
	}
	if err := os.WriteFile(req.Output, MediaBytes(f.Target, int(size)), 0o644); err != nil {
		return encoding.Output{}, err
	}
	info, err := os.Stat(req.Output)
	if err != nil {
		return encoding.Output{}, err
	}
	return encoding.Output{Path: req.Output, Size: info.Size(), Format: f.Target}, nil
}

// Requests returns a copy of every request seen.
func (f *FakeEncoder) Requests() []encoding.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]encoding.Request(nil), f.requests...)
}

// ProbeReturning builds an ffprobe stand-in that reports one video stream of
// codec with the given duration for every file.
func ProbeReturning(codec, duration string) encoding.ProbeFunc {
	return func(context.Context, string, string) (ffprobe.Result, error) {
		result := ffprobe.Result{Format: ffprobe.Format{Duration: duration}}
		if codec != "" {
			result.Streams = []ffprobe.Stream{{CodecType: "video", CodecName: codec}}
		}
		return result, nil
	}
}

// NewStrategy builds a real encoding.Strategy around fake encoders that
// halve their input. Video sources always probe as h264.
func NewStrategy(policy encoding.RetryPolicy) *encoding.Strategy {
	validator := encoding.NewValidator(ProbeReturning("h264", "10.0"), "ffprobe", 0)
	enc := encoding.Encoders{
		Image: &FakeEncoder{Tool: "magick", Target: format.JXL, Ratio: 0.5},
		Video: &FakeEncoder{Tool: "ffmpeg", Target: format.MP4, Ratio: 0.5},
	}
	params := encoding.Params{ImageDistance: 1, VideoCRF: 36, VideoPreset: 4, AudioBitrate: "64k"}
	return encoding.NewStrategy(enc, validator, params, policy, nil)
}
