package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Database selects the persistence backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Workflow contains worker pool, lease and sweep timing.
type Workflow struct {
	WorkerCount         int `toml:"worker_count"`
	PollIntervalMS      int `toml:"poll_interval_ms"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	LeaseSeconds        int `toml:"lease_seconds"`
	StaleAssetMinutes   int `toml:"stale_asset_minutes"`
	SweepInterval       int `toml:"sweep_interval"`
	StageTimeoutMinutes int `toml:"stage_timeout_minutes"`
	PipelineRetryLimit  int `toml:"pipeline_retry_limit"`
}

// Generation contains the per-asset retry budget and vendor throttling.
type Generation struct {
	MaxRetries        int     `toml:"max_retries"`
	BackoffInitialMS  int     `toml:"backoff_initial_ms"`
	BackoffMaxMS      int     `toml:"backoff_max_ms"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	RequestTimeout    int     `toml:"request_timeout"`
}

// Script contains parser and segmenter policy.
type Script struct {
	FallbackDialogueThreshold int    `toml:"fallback_dialogue_threshold"`
	UnknownSpeakerPolicy      string `toml:"unknown_speaker_policy"`
}

// Merge contains mixing levels and the ffmpeg binary used for rendering.
type Merge struct {
	AddTransitions  bool    `toml:"add_transitions"`
	FadeSeconds     float64 `toml:"fade_seconds"`
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	MusicVolume     float64 `toml:"music_volume"`
	SFXVolume       float64 `toml:"sfx_volume"`
	CharacterVolume float64 `toml:"character_volume"`
	NarratorVolume  float64 `toml:"narrator_volume"`
}

// Vendor contains the generation gateway connection.
type Vendor struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	LipSyncEnabled bool   `toml:"lipsync_enabled"`
	SoundEnabled   bool   `toml:"sound_enabled"`
}

// Storage selects where rendered media is written.
type Storage struct {
	Backend   string `toml:"backend"`
	LocalDir  string `toml:"local_dir"`
	BaseURL   string `toml:"base_url"`
	GCSBucket string `toml:"gcs_bucket"`
	GCSPrefix string `toml:"gcs_prefix"`
}

// Progress contains optional fan-out sinks for progress events.
type Progress struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisChannel  string `toml:"redis_channel"`
	PubSubProject string `toml:"pubsub_project"`
	PubSubTopic   string `toml:"pubsub_topic"`
	// NtfyTopic receives milestone notifications (start, finish, failure).
	NtfyTopic          string `toml:"ntfy_topic"`
	NtfyRequestTimeout int    `toml:"ntfy_request_timeout"`
}

// Telemetry contains OpenTelemetry exporter settings.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	GCPProject  string `toml:"gcp_project"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for scriptreel.
//
// Configuration sections by subsystem:
//   - Paths: data, log and output directories plus the API bind address
//   - Database: sqlite or postgres persistence
//   - Workflow: worker pool size, leases, sweeps and pipeline retries
//   - Generation: per-asset retry budget and vendor rate limits
//   - Script: segmentation fallback and unknown speaker policy
//   - Merge: fades, mixing levels and the ffmpeg binary
//   - Vendor: generation gateway connection
//   - Storage: local or GCS media storage
//   - Progress: Redis and Pub/Sub progress sinks
//   - Telemetry: OpenTelemetry export to Google Cloud
//   - Logging: log format, level, and rotation
type Config struct {
	Paths      Paths      `toml:"paths"`
	Database   Database   `toml:"database"`
	Workflow   Workflow   `toml:"workflow"`
	Generation Generation `toml:"generation"`
	Script     Script     `toml:"script"`
	Merge      Merge      `toml:"merge"`
	Vendor     Vendor     `toml:"vendor"`
	Storage    Storage    `toml:"storage"`
	Progress   Progress   `toml:"progress"`
	Telemetry  Telemetry  `toml:"telemetry"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
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

	projectPath, err := filepath.Abs("scriptreel.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.OutputDir, c.WorkDir()}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabaseDSN returns the data source name for the configured driver. SQLite
// defaults to a file inside the data directory.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.Paths.DataDir, "scriptreel.db")
}

// WorkDir is the scratch directory used while rendering merges.
func (c *Config) WorkDir() string {
	return filepath.Join(c.Paths.DataDir, "work")
}

// LogFilePath returns the daemon's rotating log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "scriptreeld.log")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scriptreeld.lock")
}

// PIDPath returns the file a running daemon records its pid in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "scriptreeld.pid")
}

// PollInterval is how often idle workers look for due work.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalMS) * time.Millisecond
}

// HeartbeatInterval is how often lease holders renew their lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// LeaseDuration is how long a claimed asset or generation stays owned
// without a heartbeat.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Workflow.LeaseSeconds) * time.Second
}

// StaleAfter is the age past which the sweep takes over ownerless assets.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Workflow.StaleAssetMinutes) * time.Minute
}

// SweepInterval is how often the stale sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Workflow.SweepInterval) * time.Second
}

// StageTimeout bounds how long one generation stage may run before the
// barrier is considered timed out.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Workflow.StageTimeoutMinutes) * time.Minute
}

// BackoffInitial is the delay before the first transient retry.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.Generation.BackoffInitialMS) * time.Millisecond
}

// BackoffMax caps the transient retry delay.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Generation.BackoffMaxMS) * time.Millisecond
}

// RequestTimeout bounds a single vendor request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Generation.RequestTimeout) * time.Second
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
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

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
