package config

const (
	defaultConfigPath              = "~/.config/scriptreel/config.toml"
	defaultDataDir                 = "~/.local/share/scriptreel"
	defaultLogDir                  = "~/.local/share/scriptreel/logs"
	defaultOutputDir               = "~/.local/share/scriptreel/output"
	defaultMediaDir                = "~/.local/share/scriptreel/media"
	defaultAPIBind                 = "127.0.0.1:7600"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogMaxSizeMB            = 10
	defaultLogMaxBackups           = 3
	defaultLogMaxAgeDays           = 28
	defaultWorkerCount             = 4
	defaultPollIntervalMS          = 500
	defaultHeartbeatInterval       = 15
	defaultLeaseSeconds            = 120
	defaultStaleAssetMinutes       = 5
	defaultSweepInterval           = 60
	defaultStageTimeoutMinutes     = 30
	defaultPipelineRetryLimit      = 1
	defaultMaxRetries              = 3
	defaultBackoffInitialMS        = 1000
	defaultBackoffMaxMS            = 30000
	defaultRequestsPerSecond       = 2.0
	defaultBurst                   = 2
	defaultRequestTimeout          = 120
	defaultFadeSeconds             = 0.5
	defaultFFmpegBinary            = "ffmpeg"
	defaultMusicVolume             = 0.25
	defaultSFXVolume               = 0.6
	defaultCharacterVolume         = 1.0
	defaultNarratorVolume          = 1.0
	defaultRedisChannel            = "scriptreel:progress"
	defaultNtfyRequestTimeout      = 10
	defaultServiceName             = "scriptreel"
	defaultUnknownSpeakerPolicy    = "narrator"
	defaultVendorAPIKeyEnvironment = "SCRIPTREEL_VENDOR_API_KEY"
)

// Driver and backend names accepted by the configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	StorageLocal   = "local"
	StorageGCS     = "gcs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
			APIBind:   defaultAPIBind,
		},
		Database: Database{
			Driver: DriverSQLite,
		},
		Workflow: Workflow{
			WorkerCount:         defaultWorkerCount,
			PollIntervalMS:      defaultPollIntervalMS,
			HeartbeatInterval:   defaultHeartbeatInterval,
			LeaseSeconds:        defaultLeaseSeconds,
			StaleAssetMinutes:   defaultStaleAssetMinutes,
			SweepInterval:       defaultSweepInterval,
			StageTimeoutMinutes: defaultStageTimeoutMinutes,
			PipelineRetryLimit:  defaultPipelineRetryLimit,
		},
		Generation: Generation{
			MaxRetries:        defaultMaxRetries,
			BackoffInitialMS:  defaultBackoffInitialMS,
			BackoffMaxMS:      defaultBackoffMaxMS,
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
			RequestTimeout:    defaultRequestTimeout,
		},
		Script: Script{
			UnknownSpeakerPolicy: defaultUnknownSpeakerPolicy,
		},
		Merge: Merge{
			AddTransitions:  true,
			FadeSeconds:     defaultFadeSeconds,
			FFmpegBinary:    defaultFFmpegBinary,
			MusicVolume:     defaultMusicVolume,
			SFXVolume:       defaultSFXVolume,
			CharacterVolume: defaultCharacterVolume,
			NarratorVolume:  defaultNarratorVolume,
		},
		Vendor: Vendor{
			SoundEnabled: true,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			LocalDir: defaultMediaDir,
		},
		Progress: Progress{
			RedisChannel:       defaultRedisChannel,
			NtfyRequestTimeout: defaultNtfyRequestTimeout,
		},
		Telemetry: Telemetry{
			ServiceName: defaultServiceName,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
