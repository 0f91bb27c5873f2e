package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateImmich,
		c.validateRun,
		c.validateFilter,
		c.validateImage,
		c.validateVideo,
		c.validateTools,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateImmich() error {
	if c.Immich.APIBase == "" {
		return errors.New("immich.api_base is required. Set IMMICH_API_BASE or edit the config file (create with 'reclaim config init')")
	}
	parsed, err := url.Parse(c.Immich.APIBase)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("immich.api_base must be an http(s) URL, got %q", c.Immich.APIBase)
	}
	if c.Immich.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("immich.api_key is required. Set IMMICH_API_KEY or edit %s (create with 'reclaim config init')", defaultPath)
	}
	if c.Immich.RetryMax < 0 {
		return errors.New("immich.retry_max must be >= 0")
	}
	return ensurePositive(map[string]int{
		"immich.request_timeout": c.Immich.RequestTimeout,
		"immich.retry_backoff":   c.Immich.RetryBackoff,
		"immich.page_size":       c.Immich.PageSize,
	})
}

func (c *Config) validateRun() error {
	if c.Run.Concurrency < 1 {
		return errors.New("run.concurrency must be >= 1")
	}
	if c.Run.MaxAssets < 0 {
		return errors.New("run.max_assets must be >= 0")
	}
	if c.Run.ProgressEvery < 0 {
		return errors.New("run.progress_every must be >= 0")
	}
	if c.Run.StaleJobHours < 0 {
		return errors.New("run.stale_job_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateFilter() error {
	if len(c.Filter.AssetTypes) == 0 {
		return errors.New("filter.asset_types must include IMAGE and/or VIDEO")
	}
	var invalid []string
	for _, t := range c.Filter.AssetTypes {
		if t != AssetTypeImage && t != AssetTypeVideo {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("filter.asset_types has invalid values %s (valid: IMAGE, VIDEO)", strings.Join(invalid, ", "))
	}
	return nil
}

func (c *Config) validateImage() error {
	if err := inRange("image.distance", c.Image.Distance, 0, maxImageDistance); err != nil {
		return err
	}
	if err := inRange("image.distance_retry", c.Image.DistanceRetry, 0, maxImageDistance); err != nil {
		return err
	}
	if c.Image.Timeout <= 0 {
		return errors.New("image.timeout must be positive")
	}
	return nil
}

func (c *Config) validateVideo() error {
	switch c.Video.Encoder {
	case EncoderFFmpeg, EncoderDrapto:
	default:
		return fmt.Errorf("video.encoder must be %q or %q, got %q", EncoderFFmpeg, EncoderDrapto, c.Video.Encoder)
	}
	if c.Video.CRF < 0 || c.Video.CRF > maxCRF {
		return fmt.Errorf("video.crf must be between 0 and %d", maxCRF)
	}
	if c.Video.CRFRetry < 0 || c.Video.CRFRetry > maxCRF {
		return fmt.Errorf("video.crf_retry must be between 0 and %d", maxCRF)
	}
	if c.Video.Preset < 0 || c.Video.Preset > maxPreset {
		return fmt.Errorf("video.preset must be between 0 and %d", maxPreset)
	}
	if c.Video.MaxDimension < 0 {
		return errors.New("video.max_dimension must be >= 0 (0 keeps the original size)")
	}
	if c.Video.Encoder == EncoderDrapto && c.Video.MaxDimension > 0 {
		return errors.New("video.max_dimension is not supported with video.encoder = \"drapto\"")
	}
	if c.Video.Timeout <= 0 {
		return errors.New("video.timeout must be positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return ensurePositive(map[string]int{
		"tools.probe_timeout":           c.Tools.ProbeTimeout,
		"tools.metadata_timeout":        c.Tools.MetadataTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func inRange(key string, value, lo, hi float64) error {
	if value < lo || value > hi {
		return fmt.Errorf("%s must be between %g and %g", key, lo, hi)
	}
	return nil
}

func ensurePositive(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
