package encoding

import (
	"context"
	"log/slog"
	"time"

	"reclaim/internal/fileutil"
	"reclaim/internal/logging"
	"reclaim/internal/media/format"
)

// ImageConverter re-encodes any decodable image to JPEG XL with ImageMagick
// and then copies embedded EXIF/XMP with exiftool.
type ImageConverter struct {
	binary          string
	exiftool        string
	timeout         time.Duration
	metadataTimeout time.Duration
	logger          *slog.Logger
}

// ImageConverterOption configures an ImageConverter.
type ImageConverterOption func(*ImageConverter)

// WithExiftool sets the exiftool binary. An empty name disables the metadata copy.
func WithExiftool(binary string, timeout time.Duration) ImageConverterOption {
	return func(c *ImageConverter) {
		c.exiftool = binary
		c.metadataTimeout = timeout
	}
}

// WithConverterLogger attaches a logger for metadata-copy warnings.
func WithConverterLogger(logger *slog.Logger) ImageConverterOption {
	return func(c *ImageConverter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewImageConverter constructs the ImageMagick adapter.
func NewImageConverter(binary string, timeout time.Duration, opts ...ImageConverterOption) *ImageConverter {
	if binary == "" {
		binary = "magick"
	}
	c := &ImageConverter{binary: binary, timeout: timeout, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ImageConverter) Name() string { return "magick" }

func (c *ImageConverter) Format() format.Format { return format.JXL }

// Encode runs "magick <in> -define jxl:distance=D <out>".
func (c *ImageConverter) Encode(ctx context.Context, req Request) (Output, error) {
	args := ImageMagickArgs(req.Input, req.Output, req.Distance)
	res := runTool(ctx, c.timeout, c.binary, args...)
	if res.err != nil {
		_ = fileutil.RemoveIfExists(req.Output)
		return Output{}, res.toolError(c.Name(), ToolExecutionFailed)
	}
	c.copyMetadata(ctx, req.Input, req.Output)
	return collectOutput(c.Name(), req.Output, format.JXL)
}

// ImageMagickArgs builds the magick argument list.
func ImageMagickArgs(input, output string, distance float64) []string {
	return []string{input, "-define", "jxl:" + distanceParam(distance), output}
}

// copyMetadata is best effort; the library keeps its own copy of capture metadata.
func (c *ImageConverter) copyMetadata(ctx context.Context, src, dst string) {
	if c.exiftool == "" {
		return
	}
	res := runTool(ctx, c.metadataTimeout, c.exiftool, "-overwrite_original", "-tagsFromFile", src, dst)
	if res.err == nil {
		return
	}
	logging.WarnWithContext(c.logger, "embedded metadata copy failed", "exif_copy_failed",
		logging.String("source", src),
		logging.Error(res.err),
		logging.Bool("timed_out", res.timedOut),
		logging.String(logging.FieldErrorHint, "install exiftool or check the source file tags"),
		logging.String(logging.FieldImpact, "converted image may lack embedded EXIF/XMP"),
	)
}
