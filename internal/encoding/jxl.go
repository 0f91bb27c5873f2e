package encoding

import (
	"context"
	"regexp"
	"time"

	"reclaim/internal/fileutil"
	"reclaim/internal/media/format"
)

// cjxl refuses some JPEGs it cannot repack losslessly. These are not
// failures of the tool; the strategy falls back to a pixel re-encode.
var reJPEGNotRepackable = regexp.MustCompile(
	`(?i)progressive|arithmetic coding|CMYK|YCCK|` +
		`JPEG bitstream reconstruction data could not be created|` +
		`unsupported (jpeg|colou?r space|sampling)|` +
		`Getting pixel data failed`)

// MatchJPEGNotRepackable reports whether cjxl stderr says the JPEG cannot be
// transcoded losslessly.
func MatchJPEGNotRepackable(stderr string) bool {
	return reJPEGNotRepackable.MatchString(stderr)
}

// JXLRepack losslessly repacks a JPEG bitstream into JPEG XL with cjxl.
type JXLRepack struct {
	binary  string
	timeout time.Duration
}

// NewJXLRepack constructs the cjxl adapter.
func NewJXLRepack(binary string, timeout time.Duration) *JXLRepack {
	if binary == "" {
		binary = "cjxl"
	}
	return &JXLRepack{binary: binary, timeout: timeout}
}

func (j *JXLRepack) Name() string { return "cjxl" }

func (j *JXLRepack) Format() format.Format { return format.JXL }

// Encode runs "cjxl <in> <out>". A missing binary or an unrepackable JPEG
// yields ToolNotApplicable.
func (j *JXLRepack) Encode(ctx context.Context, req Request) (Output, error) {
	res := runTool(ctx, j.timeout, j.binary, req.Input, req.Output)
	if res.err != nil {
		_ = fileutil.RemoveIfExists(req.Output)
		if !res.timedOut && MatchJPEGNotRepackable(res.stderr) {
			return Output{}, newToolError(j.Name(), ToolNotApplicable, res.stderr, res.err)
		}
		return Output{}, res.toolError(j.Name(), ToolNotApplicable)
	}
	return collectOutput(j.Name(), req.Output, format.JXL)
}

// collectOutput stats the written file. A missing or empty file after a zero
// exit is an execution failure.
func collectOutput(tool, path string, f format.Format) (Output, error) {
	size, err := fileutil.Size(path)
	if err != nil {
		return Output{}, newToolError(tool, ToolExecutionFailed, "", err)
	}
	return Output{Path: path, Size: size, Format: f}, nil
}
