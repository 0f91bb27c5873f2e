package config

const (
	defaultConfigPath        = "~/.config/reclaim/config.toml"
	projectConfigName        = "reclaim.toml"
	defaultWorkDir           = "~/.local/share/reclaim/work"
	defaultLogDir            = "~/.local/share/reclaim/logs"
	defaultLedgerPath        = "~/.local/share/reclaim/reclaim.db"
	defaultRequestTimeout    = 300
	defaultRetryMax          = 3
	defaultRetryBackoff      = 2
	defaultPageSize          = 500
	defaultConcurrency       = 1
	defaultProgressEvery     = 50
	defaultStaleJobHours     = 24
	defaultImageDistance     = 1.0
	defaultImageDistanceRtry = 2.0
	defaultImageTimeout      = 600
	defaultVideoEncoder      = "ffmpeg"
	defaultVideoCRF          = 36
	defaultVideoPreset       = 4
	defaultVideoAudioBitrate = "64k"
	defaultVideoCRFRetry     = 40
	defaultVideoTimeout      = 43200
	defaultProbeTimeout      = 60
	defaultMetadataTimeout   = 120
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultNotifyTimeout     = 10

	// Asset types understood by the library search API.
	AssetTypeImage = "IMAGE"
	AssetTypeVideo = "VIDEO"

	// Video encoder backends.
	EncoderFFmpeg = "ffmpeg"
	EncoderDrapto = "drapto"

	maxImageDistance = 25.0
	maxCRF           = 63
	maxPreset        = 13
)

// Default returns a Config populated with repository defaults. Dry run is on
// until the operator opts in to destructive runs.
func Default() Config {
	return Config{
		Immich: Immich{
			RequestTimeout: defaultRequestTimeout,
			RetryMax:       defaultRetryMax,
			RetryBackoff:   defaultRetryBackoff,
			PageSize:       defaultPageSize,
		},
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			LedgerPath: defaultLedgerPath,
		},
		Run: Run{
			DryRun:        true,
			Concurrency:   defaultConcurrency,
			ProgressEvery: defaultProgressEvery,
			StaleJobHours: defaultStaleJobHours,
		},
		Filter: Filter{
			AssetTypes: []string{AssetTypeImage, AssetTypeVideo},
		},
		Image: Image{
			Distance:      defaultImageDistance,
			DistanceRetry: defaultImageDistanceRtry,
			Timeout:       defaultImageTimeout,
		},
		Video: Video{
			Encoder:      defaultVideoEncoder,
			CRF:          defaultVideoCRF,
			Preset:       defaultVideoPreset,
			AudioBitrate: defaultVideoAudioBitrate,
			CRFRetry:     defaultVideoCRFRetry,
			Timeout:      defaultVideoTimeout,
		},
		Retry: Retry{
			Enabled: true,
		},
		Tools: Tools{
			CJXL:            "cjxl",
			Magick:          "magick",
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			Exiftool:        "exiftool",
			ProbeTimeout:    defaultProbeTimeout,
			MetadataTimeout: defaultMetadataTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: 30,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
