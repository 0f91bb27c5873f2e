package deps

import (
	"reclaim/internal/config"
)

// Requirements lists the binaries a run needs for the configured asset types
// and video encoder.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	var reqs []Requirement
	if cfg.HasAssetType(config.AssetTypeImage) {
		reqs = append(reqs,
			Requirement{
				Name:        "ImageMagick",
				Command:     cfg.Tools.Magick,
				Description: "Converts images to JPEG XL",
			},
			Requirement{
				Name:        "cjxl",
				Command:     cfg.Tools.CJXL,
				Description: "Repacks JPEGs losslessly; magick is used without it",
				Optional:    true,
			},
			Requirement{
				Name:        "exiftool",
				Command:     cfg.Tools.Exiftool,
				Description: "Copies embedded EXIF/XMP into converted images",
				Optional:    true,
			},
		)
	}
	if cfg.HasAssetType(config.AssetTypeVideo) {
		ffmpegDesc := "Encodes video to AV1"
		if cfg.Video.Encoder == config.EncoderDrapto {
			ffmpegDesc = "Used by drapto for encoding and by the size retry"
		}
		reqs = append(reqs,
			Requirement{
				Name:        "FFmpeg",
				Command:     cfg.Tools.FFmpeg,
				Description: ffmpegDesc,
			},
			Requirement{
				Name:        "FFprobe",
				Command:     cfg.Tools.FFprobe,
				Description: "Detects source codecs and validates encoded video",
			},
		)
	}
	return reqs
}

// MissingRequired returns the required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
