package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scriptreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.LocalDir = filepath.Join(base, "media")
	cfgVal.Vendor.BaseURL = "http://127.0.0.1:0"
	cfgVal.Generation.BackoffInitialMS = 1
	cfgVal.Generation.BackoffMaxMS = 10
	cfgVal.Workflow.PollIntervalMS = 10

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithVendorURL points the vendor gateway at url (usually an httptest server).
func WithVendorURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Vendor.BaseURL = url
		b.cfg.Vendor.APIKey = "test-key"
	}
}

// WithRetryLimits overrides the per-asset and pipeline retry budgets.
func WithRetryLimits(assetRetries, pipelineRetries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.MaxRetries = assetRetries
		b.cfg.Workflow.PipelineRetryLimit = pipelineRetries
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
		b.cfg.Merge.FFmpegBinary = "ffmpeg"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
