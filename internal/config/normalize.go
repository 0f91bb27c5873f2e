package config

import (
	"fmt"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImmich()
	if err := c.normalizeFilter(); err != nil {
		return err
	}
	c.normalizeVideo()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = defaultLedgerPath
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeImmich() {
	c.Immich.APIKey = strings.TrimSpace(c.Immich.APIKey)
	base := strings.TrimSpace(c.Immich.APIBase)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	c.Immich.APIBase = base
	if c.Immich.PageSize <= 0 {
		c.Immich.PageSize = defaultPageSize
	}
}

func (c *Config) normalizeFilter() error {
	seen := make(map[string]struct{}, len(c.Filter.AssetTypes))
	types := make([]string, 0, len(c.Filter.AssetTypes))
	for _, t := range c.Filter.AssetTypes {
		normalized := strings.ToUpper(strings.TrimSpace(t))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		types = append(types, normalized)
	}
	c.Filter.AssetTypes = types

	var err error
	if c.Filter.TakenAfter, err = NormalizeDate(c.Filter.TakenAfter, false); err != nil {
		return fmt.Errorf("filter.taken_after: %w", err)
	}
	if c.Filter.TakenBefore, err = NormalizeDate(c.Filter.TakenBefore, true); err != nil {
		return fmt.Errorf("filter.taken_before: %w", err)
	}
	return nil
}

func (c *Config) normalizeVideo() {
	c.Video.Encoder = strings.ToLower(strings.TrimSpace(c.Video.Encoder))
	if c.Video.Encoder == "" {
		c.Video.Encoder = defaultVideoEncoder
	}
	c.Video.AudioBitrate = strings.TrimSpace(c.Video.AudioBitrate)
	if c.Video.AudioBitrate == "" {
		c.Video.AudioBitrate = defaultVideoAudioBitrate
	}
}

func (c *Config) normalizeTools() {
	fallback := func(value *string, name string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = name
		}
	}
	fallback(&c.Tools.CJXL, "cjxl")
	fallback(&c.Tools.Magick, "magick")
	fallback(&c.Tools.FFmpeg, "ffmpeg")
	fallback(&c.Tools.FFprobe, "ffprobe")
	fallback(&c.Tools.Exiftool, "exiftool")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// NormalizeDate expands a bare YYYY-MM-DD into the first (or, for an upper
// bound, last) millisecond of that day in UTC. ISO 8601 timestamps pass
// through unchanged once they parse.
func NormalizeDate(value string, endOfDay bool) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if len(value) == len(time.DateOnly) && strings.Count(value, "-") == 2 {
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", value)
		}
		if endOfDay {
			return value + "T23:59:59.999Z", nil
		}
		return value + "T00:00:00.000Z", nil
	}
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return value, nil
		}
	}
	return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD or ISO 8601", value)
}
