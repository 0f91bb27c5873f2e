package encoding

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"reclaim/internal/fileutil"
	"reclaim/internal/media/format"
)

// VideoTranscoder encodes video to AV1 (SVT-AV1) with Opus audio in MP4.
type VideoTranscoder struct {
	binary  string
	timeout time.Duration
}

// NewVideoTranscoder constructs the ffmpeg adapter.
func NewVideoTranscoder(binary string, timeout time.Duration) *VideoTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &VideoTranscoder{binary: binary, timeout: timeout}
}

func (v *VideoTranscoder) Name() string { return "ffmpeg" }

func (v *VideoTranscoder) Format() format.Format { return format.MP4 }

// Encode runs ffmpeg with the arguments from FFmpegArgs.
func (v *VideoTranscoder) Encode(ctx context.Context, req Request) (Output, error) {
	res := runTool(ctx, v.timeout, v.binary, FFmpegArgs(req)...)
	if res.err != nil {
		_ = fileutil.RemoveIfExists(req.Output)
		return Output{}, res.toolError(v.Name(), ToolExecutionFailed)
	}
	return collectOutput(v.Name(), req.Output, format.MP4)
}

// FFmpegArgs builds the ffmpeg argument list. Container metadata is carried
// over and the moov atom is moved to the front for streaming.
func FFmpegArgs(req Request) []string {
	args := []string{
		"-y", "-i", req.Input,
		"-c:v", "libsvtav1",
		"-crf", strconv.Itoa(req.CRF),
		"-preset", strconv.Itoa(req.Preset),
	}
	if req.MaxDimension > 0 {
		args = append(args, "-vf", ScaleFilter(req.MaxDimension))
	}
	bitrate := req.AudioBitrate
	if bitrate == "" {
		bitrate = "64k"
	}
	return append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "libopus",
		"-b:a", bitrate,
		"-map_metadata", "0",
		"-movflags", "+faststart",
		req.Output,
	)
}

// ScaleFilter limits the shorter side of the frame to maxDim while keeping
// the aspect ratio and even dimensions. Smaller sources are left alone.
func ScaleFilter(maxDim int) string {
	m := strconv.Itoa(maxDim)
	w := fmt.Sprintf("trunc(if(gt(min(iw,ih),%[1]s),iw*%[1]s/min(iw,ih),iw)/2)*2", m)
	h := fmt.Sprintf("trunc(if(gt(min(iw,ih),%[1]s),ih*%[1]s/min(iw,ih),ih)/2)*2", m)
	return fmt.Sprintf("scale='%s':'%s'", w, h)
}
