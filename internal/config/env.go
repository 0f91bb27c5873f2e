package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type lookupFunc func(string) (string, bool)

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are left untouched.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the container-style environment variables onto the config.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup, cfg: c}

	e.str("IMMICH_API_BASE", &c.Immich.APIBase)
	e.str("IMMICH_API_KEY", &c.Immich.APIKey)
	e.str("WORKDIR", &c.Paths.WorkDir)
	e.boolean("DRY_RUN", &c.Run.DryRun)
	e.integer("CONCURRENCY", &c.Run.Concurrency)
	e.integer("MAX_ASSETS", &c.Run.MaxAssets)
	if raw, ok := e.value("ASSET_TYPES"); ok {
		c.Filter.AssetTypes = splitList(raw)
	}
	e.boolean("INCLUDE_ARCHIVED", &c.Filter.IncludeArchived)
	e.boolean("INCLUDE_DELETED", &c.Filter.IncludeDeleted)
	e.str("FILTER_DATE_AFTER", &c.Filter.TakenAfter)
	e.str("FILTER_DATE_BEFORE", &c.Filter.TakenBefore)
	e.float("IMAGE_DISTANCE", &c.Image.Distance)
	e.float("IMAGE_DISTANCE_RETRY", &c.Image.DistanceRetry)
	e.integer("VIDEO_CRF", &c.Video.CRF)
	e.integer("VIDEO_PRESET", &c.Video.Preset)
	if raw, ok := e.value("VIDEO_MAX_DIMENSION"); ok {
		if strings.EqualFold(raw, "original") {
			c.Video.MaxDimension = 0
		} else {
			e.integer("VIDEO_MAX_DIMENSION", &c.Video.MaxDimension)
		}
	}
	e.str("VIDEO_AUDIO_BITRATE", &c.Video.AudioBitrate)
	e.integer("VIDEO_CRF_RETRY", &c.Video.CRFRetry)
	e.str("VIDEO_ENCODER", &c.Video.Encoder)
	e.boolean("ENABLE_RETRY", &c.Retry.Enabled)
	e.boolean("ACCEPT_RETRY_OUTPUT", &c.Retry.AcceptLarger)
	e.boolean("ALLOW_LARGER", &c.Retry.AllowLarger)
	e.str("NTFY_TOPIC", &c.Notifications.NtfyTopic)

	return e.err
}

type envReader struct {
	lookup lookupFunc
	cfg    *Config
	err    error
}

func (e *envReader) value(name string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	raw, ok := e.lookup(name)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}

func (e *envReader) str(name string, dst *string) {
	if raw, ok := e.value(name); ok {
		*dst = raw
	}
}

func (e *envReader) integer(name string, dst *int) {
	raw, ok := e.value(name)
	if !ok || e.err != nil {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		e.err = fmt.Errorf("invalid integer value for %s: %q", name, raw)
		return
	}
	*dst = parsed
}

func (e *envReader) float(name string, dst *float64) {
	raw, ok := e.value(name)
	if !ok || e.err != nil {
		return
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.err = fmt.Errorf("invalid float value for %s: %q", name, raw)
		return
	}
	*dst = parsed
}

// boolean keeps the current value when the variable cannot be parsed.
func (e *envReader) boolean(name string, dst *bool) {
	raw, ok := e.value(name)
	if !ok {
		return
	}
	parsed, valid := ParseBool(raw)
	if !valid {
		e.cfg.warnings = append(e.cfg.warnings, fmt.Sprintf("invalid boolean value for %s: %q, keeping %t", name, raw, *dst))
		return
	}
	*dst = parsed
}

// ParseBool accepts true/1/yes/on and false/0/no/off in any case.
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
