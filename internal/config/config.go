package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Immich contains connection settings for the photo library server.
type Immich struct {
	APIBase        string `toml:"api_base"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
	RetryMax       int    `toml:"retry_max"`
	RetryBackoff   int    `toml:"retry_backoff"`
	PageSize       int    `toml:"page_size"`
}

// Paths contains the working, log, and ledger locations.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// Run contains batch-level behaviour.
type Run struct {
	DryRun        bool `toml:"dry_run"`
	Concurrency   int  `toml:"concurrency"`
	MaxAssets     int  `toml:"max_assets"`
	ProgressEvery int  `toml:"progress_every"`
	StaleJobHours int  `toml:"stale_job_hours"`
}

// Filter narrows which library assets are scanned.
type Filter struct {
	AssetTypes      []string `toml:"asset_types"`
	IncludeArchived bool     `toml:"include_archived"`
	IncludeDeleted  bool     `toml:"include_deleted"`
	TakenAfter      string   `toml:"taken_after"`
	TakenBefore     string   `toml:"taken_before"`
}

// Image contains JPEG XL encoding parameters. Distance 0 is lossless; higher
// values compress harder.
type Image struct {
	Distance      float64 `toml:"distance"`
	DistanceRetry float64 `toml:"distance_retry"`
	Timeout       int     `toml:"timeout"`
}

// Video contains AV1 encoding parameters. MaxDimension limits the shorter side
// of the frame; 0 keeps the original resolution.
type Video struct {
	Encoder      string `toml:"encoder"`
	CRF          int    `toml:"crf"`
	Preset       int    `toml:"preset"`
	MaxDimension int    `toml:"max_dimension"`
	AudioBitrate string `toml:"audio_bitrate"`
	CRFRetry     int    `toml:"crf_retry"`
	Timeout      int    `toml:"timeout"`
}

// Retry controls the size-regression policy.
type Retry struct {
	Enabled      bool `toml:"enabled"`
	AcceptLarger bool `toml:"accept_larger"`
	AllowLarger  bool `toml:"allow_larger"`
}

// Tools names the external binaries and their shared timeouts.
type Tools struct {
	CJXL            string `toml:"cjxl"`
	Magick          string `toml:"magick"`
	FFmpeg          string `toml:"ffmpeg"`
	FFprobe         string `toml:"ffprobe"`
	Exiftool        string `toml:"exiftool"`
	ProbeTimeout    int    `toml:"probe_timeout"`
	MetadataTimeout int    `toml:"metadata_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for reclaim.
//
// Configuration sections by subsystem:
//   - Immich: library server connection and HTTP retry policy
//   - Paths: job working directory, logs, and run ledger
//   - Run: dry-run switch, worker count, and asset cap
//   - Filter: asset types, archived/deleted inclusion, capture-date window
//   - Image / Video: encoder parameters and per-tool timeouts
//   - Retry: size-regression retry and acceptance rules
//   - Tools: external binary names
//   - Logging, Notifications
type Config struct {
	Immich        Immich        `toml:"immich"`
	Paths         Paths         `toml:"paths"`
	Run           Run           `toml:"run"`
	Filter        Filter        `toml:"filter"`
	Image         Image         `toml:"image"`
	Video         Video         `toml:"video"`
	Retry         Retry         `toml:"retry"`
	Tools         Tools         `toml:"tools"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`

	warnings []string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment
// variables override file values. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolved, exists, err := LoadUnvalidated(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolved, exists, nil
}

// LoadUnvalidated performs every Load step except validation. The check and
// config show commands use it to report problems instead of aborting.
func LoadUnvalidated(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// Warnings returns non-fatal problems found while reading the environment.
func (c *Config) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the work, log, and ledger directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir, filepath.Dir(c.Paths.LedgerPath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HasAssetType reports whether the filter includes the given asset type.
func (c *Config) HasAssetType(assetType string) bool {
	for _, t := range c.Filter.AssetTypes {
		if strings.EqualFold(t, assetType) {
			return true
		}
	}
	return false
}

// LockPath returns the single-instance lock file used by run.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "reclaim.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML with the API key redacted.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.Immich.APIKey != "" {
		clone.Immich.APIKey = "********"
	}
	return toml.Marshal(clone)
}
