package api

import "time"

// APIConfig configures the HTTP server that exposes health, sessions and
// Prometheus metrics.
//
// When Enabled is false, no HTTP server is started.
type APIConfig struct {
	// Enabled controls whether the server is started.
	// Default: true. A pointer distinguishes "not set" from "explicitly false".
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the IP to listen on. Empty listens on all interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address,omitempty"`

	// Port is the HTTP port.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=0,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWTSecret signs the bearer tokens required by GET /sessions. At least
	// 32 characters. Empty serves /sessions to loopback clients only.
	// Prefer DITTOSMB_API_JWT_SECRET over writing it to the file.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32" yaml:"jwt_secret,omitempty"`

	// TokenTTL is the lifetime of tokens minted by the CLI.
	// Default: 15m
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// IsEnabled returns whether the server is enabled. Defaults to true.
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 15 * time.Minute
	}
}

// DefaultPort is the conventional Prometheus exporter port.
const DefaultPort = 9090
