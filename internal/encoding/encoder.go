package encoding

import (
	"context"
	"fmt"
	"strconv"

	"reclaim/internal/media/format"
)

// Request describes one encoder invocation. Only the parameters relevant to
// the adapter are read.
type Request struct {
	Input        string
	Output       string
	Distance     float64
	CRF          int
	Preset       int
	MaxDimension int
	AudioBitrate string
}

// Output is a file an encoder produced.
type Output struct {
	Path   string
	Size   int64
	Format format.Format
}

// Encoder wraps one external encoder. Implementations write exactly one file
// at Request.Output, never modify Request.Input, and return *ToolError on
// failure.
type Encoder interface {
	Name() string
	// Format is the container the encoder writes.
	Format() format.Format
	Encode(ctx context.Context, req Request) (Output, error)
}

// Attempt records one encoder invocation for diagnostics.
type Attempt struct {
	Tool    string        `json:"tool"`
	Params  string        `json:"params"`
	Size    int64         `json:"size,omitempty"`
	Success bool          `json:"success"`
	Kind    ToolErrorKind `json:"error_kind,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

func distanceParam(d float64) string {
	return "distance=" + strconv.FormatFloat(d, 'f', -1, 64)
}

func crfParam(crf int) string {
	return fmt.Sprintf("crf=%d", crf)
}
