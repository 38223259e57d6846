package config

import (
	"slices"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/telemetry"
)

// ApplyDefaults fills zero values. Sections owned by other packages apply
// their own defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.API.ApplyDefaults()
	cfg.SMB.ApplyDefaults()
}

// Level is upper-cased so env overrides like "debug" validate.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = telemetry.DefaultEndpoint
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = telemetry.DefaultProfilingEndpoint
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = slices.Clone(telemetry.DefaultProfileTypes)
	}
}

// GetDefaultConfig is what "config init" writes: SMB on port 445 with
// guest logons and signing enabled but not required.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.SMB.Enabled = true
	cfg.SMB.Auth.Guest = true

	ApplyDefaults(cfg)
	return cfg
}
