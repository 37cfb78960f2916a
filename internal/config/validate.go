package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateScript(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateVendor(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres (or set SCRIPTREEL_DATABASE_DSN)")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":          c.Workflow.WorkerCount,
		"workflow.poll_interval_ms":      c.Workflow.PollIntervalMS,
		"workflow.heartbeat_interval":    c.Workflow.HeartbeatInterval,
		"workflow.lease_seconds":         c.Workflow.LeaseSeconds,
		"workflow.stale_asset_minutes":   c.Workflow.StaleAssetMinutes,
		"workflow.sweep_interval":        c.Workflow.SweepInterval,
		"workflow.stage_timeout_minutes": c.Workflow.StageTimeoutMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.LeaseSeconds <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_seconds must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.PipelineRetryLimit < 0 {
		return errors.New("workflow.pipeline_retry_limit must be >= 0")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.MaxRetries < 0 {
		return errors.New("generation.max_retries must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"generation.backoff_initial_ms": c.Generation.BackoffInitialMS,
		"generation.backoff_max_ms":     c.Generation.BackoffMaxMS,
		"generation.burst":              c.Generation.Burst,
		"generation.request_timeout":    c.Generation.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Generation.BackoffMaxMS < c.Generation.BackoffInitialMS {
		return errors.New("generation.backoff_max_ms must be >= generation.backoff_initial_ms")
	}
	if c.Generation.RequestsPerSecond <= 0 {
		return errors.New("generation.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validateScript() error {
	if c.Script.FallbackDialogueThreshold < 0 {
		return errors.New("script.fallback_dialogue_threshold must be >= 0")
	}
	switch c.Script.UnknownSpeakerPolicy {
	case "narrator", "drop":
	default:
		return fmt.Errorf("script.unknown_speaker_policy must be narrator or drop, got %q", c.Script.UnknownSpeakerPolicy)
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.FadeSeconds < 0 {
		return errors.New("merge.fade_seconds must be >= 0")
	}
	for key, value := range map[string]float64{
		"merge.music_volume":     c.Merge.MusicVolume,
		"merge.sfx_volume":       c.Merge.SFXVolume,
		"merge.character_volume": c.Merge.CharacterVolume,
		"merge.narrator_volume":  c.Merge.NarratorVolume,
	} {
		if value < 0 || value > 2 {
			return fmt.Errorf("%s must be between 0 and 2", key)
		}
	}
	return nil
}

func (c *Config) validateVendor() error {
	if c.Vendor.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Vendor.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("vendor.base_url must be an http(s) URL, got %q", c.Vendor.BaseURL)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageLocal, StorageGCS, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry.Enabled && c.Telemetry.GCPProject == "" {
		return errors.New("telemetry.gcp_project must be set when telemetry.enabled is true (or set GOOGLE_CLOUD_PROJECT)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
