package config

import "time"

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ImageTimeout bounds one image encoder invocation.
func (c *Config) ImageTimeout() time.Duration { return seconds(c.Image.Timeout) }

// VideoTimeout bounds one video encoder invocation.
func (c *Config) VideoTimeout() time.Duration { return seconds(c.Video.Timeout) }

// ProbeTimeout bounds one ffprobe invocation.
func (c *Config) ProbeTimeout() time.Duration { return seconds(c.Tools.ProbeTimeout) }

// MetadataTimeout bounds one exiftool invocation.
func (c *Config) MetadataTimeout() time.Duration { return seconds(c.Tools.MetadataTimeout) }

// RequestTimeout bounds one library HTTP request.
func (c *Config) RequestTimeout() time.Duration { return seconds(c.Immich.RequestTimeout) }

// RetryBackoff is the base delay between retried library reads.
func (c *Config) RetryBackoff() time.Duration { return seconds(c.Immich.RetryBackoff) }

// StaleJobAge is the age after which leftover job directories are removed.
func (c *Config) StaleJobAge() time.Duration { return time.Duration(c.Run.StaleJobHours) * time.Hour }
