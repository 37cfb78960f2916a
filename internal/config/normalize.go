package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeScript()
	c.normalizeMerge()
	c.normalizeVendor()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeProgress()
	c.normalizeTelemetry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SCRIPTREEL_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = DriverSQLite
	case "postgresql", "pgx":
		c.Database.Driver = DriverPostgres
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("SCRIPTREEL_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeScript() {
	c.Script.UnknownSpeakerPolicy = strings.ToLower(strings.TrimSpace(c.Script.UnknownSpeakerPolicy))
	if c.Script.UnknownSpeakerPolicy == "" {
		c.Script.UnknownSpeakerPolicy = defaultUnknownSpeakerPolicy
	}
}

func (c *Config) normalizeMerge() {
	c.Merge.FFmpegBinary = strings.TrimSpace(c.Merge.FFmpegBinary)
	if c.Merge.FFmpegBinary == "" {
		c.Merge.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeVendor() {
	c.Vendor.BaseURL = strings.TrimRight(strings.TrimSpace(c.Vendor.BaseURL), "/")
	c.Vendor.APIKey = strings.TrimSpace(c.Vendor.APIKey)
	if value, ok := os.LookupEnv(defaultVendorAPIKeyEnvironment); ok && strings.TrimSpace(value) != "" {
		c.Vendor.APIKey = strings.TrimSpace(value)
	}
	if c.Vendor.BaseURL == "" {
		if value, ok := os.LookupEnv("SCRIPTREEL_VENDOR_URL"); ok {
			c.Vendor.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultMediaDir
	}
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	c.Storage.GCSBucket = strings.TrimSpace(c.Storage.GCSBucket)
	c.Storage.GCSPrefix = strings.Trim(strings.TrimSpace(c.Storage.GCSPrefix), "/")
	return nil
}

func (c *Config) normalizeProgress() {
	c.Progress.RedisAddr = strings.TrimSpace(c.Progress.RedisAddr)
	c.Progress.RedisChannel = strings.TrimSpace(c.Progress.RedisChannel)
	if c.Progress.RedisChannel == "" {
		c.Progress.RedisChannel = defaultRedisChannel
	}
	c.Progress.PubSubProject = strings.TrimSpace(c.Progress.PubSubProject)
	c.Progress.PubSubTopic = strings.TrimSpace(c.Progress.PubSubTopic)
	if c.Progress.PubSubTopic != "" && c.Progress.PubSubProject == "" {
		c.Progress.PubSubProject = googleProject()
	}
	c.Progress.NtfyTopic = strings.TrimSpace(c.Progress.NtfyTopic)
	if c.Progress.NtfyRequestTimeout <= 0 {
		c.Progress.NtfyRequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
	c.Telemetry.GCPProject = strings.TrimSpace(c.Telemetry.GCPProject)
	if c.Telemetry.GCPProject == "" {
		c.Telemetry.GCPProject = googleProject()
	}
}

func googleProject() string {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}
