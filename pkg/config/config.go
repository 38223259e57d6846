package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/api"
)

// EnvPrefix prefixes every environment override, e.g.
// DITTOSMB_SMB_SIGNING_REQUIRED=true.
const EnvPrefix = "DITTOSMB"

// ErrNoConfigFile is returned by Watch when there is no file to watch.
var ErrNoConfigFile = errors.New("no configuration file")

// Config represents the DittoSMB configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSMB_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics toggles Prometheus collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP server for health, sessions and /metrics
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// SMB configures the SMB listener, signing policy and authentication
	SMB smb.Config `mapstructure:"smb" yaml:"smb"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig toggles Prometheus metrics. When disabled nothing is
// collected and /metrics answers 404.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing file is not an error: defaults and environment variables
// still apply. An empty configPath searches the default location.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// MustLoad is Load for commands that need a file on disk. A missing file
// is an error that tells the user how to create one.
func MustLoad(configPath string) (*Config, error) {
	path, hint := configPath, "dittosmb config init --config "+configPath
	if path == "" {
		path, hint = GetDefaultConfigPath(), "dittosmb config init"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s\n\nCreate one with:\n  %s", path, hint)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// newViper configures env handling, defaults and the file location.
func newViper(configPath string) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return v
}

// registerDefaults feeds every key of the default config to viper.
// AutomaticEnv only resolves keys viper already knows, so this is also
// what makes DITTOSMB_* overrides work without a config file.
func registerDefaults(v *viper.Viper) {
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults(v, "", tree)

	// omitempty keys are absent from the marshalled defaults.
	for _, key := range []string{
		"api.bind_address",
		"api.jwt_secret",
		"smb.bind_address",
		"smb.server_guid",
		"smb.auth.keytab_path",
		"smb.auth.service_principal",
	} {
		v.SetDefault(key, "")
	}
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
	}
}

// readConfigFile reports whether a file was read. A missing file is not
// an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decode unmarshals, applies defaults and validates.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// configDecodeHooks lets YAML and environment strings fill sizes
// ("8Mi"), durations ("30s") and comma-separated lists.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		scalarHook(reflect.TypeOf(bytesize.ByteSize(0)), func(s string) (any, error) { return bytesize.Parse(s) },
			func(n int64) any { return bytesize.ByteSize(n) }),
		scalarHook(reflect.TypeOf(time.Duration(0)), func(s string) (any, error) { return time.ParseDuration(s) },
			func(n int64) any { return time.Duration(n) }),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// scalarHook converts strings with parse and numbers with fromInt when the
// target type is target. YAML numbers may arrive as int, int64, uint64 or
// float64 depending on the source.
func scalarHook(target reflect.Type, parse func(string) (any, error), fromInt func(int64) any) mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return parse(v)
		case int:
			return fromInt(int64(v)), nil
		case int64:
			return fromInt(v), nil
		case uint64:
			return fromInt(int64(v)), nil
		case float64:
			return fromInt(int64(v)), nil
		}
		return data, nil
	}
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// Tracing converts the telemetry section.
func (c *Config) Tracing(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "dittosmb",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// Profiling converts the telemetry.profiling section.
func (c *Config) Profiling(version string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    "dittosmb",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}

// configDir is $XDG_CONFIG_HOME/dittosmb, falling back to
// ~/.config/dittosmb and finally the working directory.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dittosmb")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "dittosmb")
	}
	return "."
}

// GetDefaultConfigPath is where config init writes and Load looks when no
// path is given.
func GetDefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
