package encoding

import (
	"log/slog"

	"reclaim/internal/config"
)

// PolicyFromConfig builds the run-wide retry policy.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		Enabled:            cfg.Retry.Enabled,
		AcceptLarger:       cfg.Retry.AcceptLarger,
		AllowLarger:        cfg.Retry.AllowLarger,
		ImageDistanceRetry: cfg.Image.DistanceRetry,
		VideoCRFRetry:      cfg.Video.CRFRetry,
	}
}

// ParamsFromConfig builds the first-attempt encoder parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		ImageDistance:     cfg.Image.Distance,
		VideoCRF:          cfg.Video.CRF,
		VideoPreset:       cfg.Video.Preset,
		VideoMaxDimension: cfg.Video.MaxDimension,
		AudioBitrate:      cfg.Video.AudioBitrate,
	}
}

// NewFromConfig constructs the production Strategy. The size-regression
// retry reuses the configured video encoder with the retry CRF.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Strategy {
	enc := Encoders{
		Repack: NewJXLRepack(cfg.Tools.CJXL, cfg.ImageTimeout()),
		Image: NewImageConverter(cfg.Tools.Magick, cfg.ImageTimeout(),
			WithExiftool(cfg.Tools.Exiftool, cfg.MetadataTimeout()),
			WithConverterLogger(logger),
		),
		Video: NewVideoTranscoder(cfg.Tools.FFmpeg, cfg.VideoTimeout()),
	}
	if cfg.Video.Encoder == config.EncoderDrapto {
		enc.Video = NewDraptoTranscoder(cfg.VideoTimeout(), logger)
	}
	validator := NewValidator(nil, cfg.Tools.FFprobe, cfg.ProbeTimeout())
	return NewStrategy(enc, validator, ParamsFromConfig(cfg), PolicyFromConfig(cfg), logger)
}
