package smb

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	smb "github.com/marmos91/dittosmb/internal/adapter/smb"
	"github.com/marmos91/dittosmb/internal/bytesize"
)

// DefaultMaxMessageSize bounds a single NetBIOS frame. Nothing this server
// answers comes close; the limit only protects the allocation in ReadFrame.
const DefaultMaxMessageSize = bytesize.ByteSize(8*bytesize.MiB + 4*bytesize.KiB)

// DefaultPort is the direct-hosted SMB port.
const DefaultPort = 445

// TimeoutsConfig groups connection deadlines. 0 disables a deadline.
type TimeoutsConfig struct {
	// Read bounds reading one complete frame.
	Read time.Duration `mapstructure:"read" validate:"min=0" yaml:"read"`

	// Write bounds writing one response frame.
	Write time.Duration `mapstructure:"write" validate:"min=0" yaml:"write"`

	// Idle closes connections that send nothing for this long.
	Idle time.Duration `mapstructure:"idle" validate:"min=0" yaml:"idle"`

	// Shutdown bounds the graceful drain of active connections.
	Shutdown time.Duration `mapstructure:"shutdown" validate:"gt=0" yaml:"shutdown"`
}

// SigningConfig is the local signing policy.
//
// Enabled is a pointer so an absent key can default to true while an
// explicit false still disables signing. Required implies Enabled.
type SigningConfig struct {
	Enabled  *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Required bool  `mapstructure:"required" yaml:"required"`
}

// AuthConfig selects the SESSION_SETUP mechanisms.
type AuthConfig struct {
	// Guest completes NTLM handshakes anonymously. Guest sessions have no
	// key and are never signed.
	Guest bool `mapstructure:"guest" yaml:"guest"`

	// KeytabPath enables Kerberos when set.
	KeytabPath string `mapstructure:"keytab_path" validate:"required_with=ServicePrincipal" yaml:"keytab_path,omitempty"`

	// ServicePrincipal is the SPN held by the keytab, e.g.
	// cifs/fileserver.example.com.
	ServicePrincipal string `mapstructure:"service_principal" validate:"required_with=KeytabPath" yaml:"service_principal,omitempty"`

	// MaxClockSkew is the Kerberos authenticator time tolerance.
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" validate:"min=0" yaml:"max_clock_skew"`
}

// Config holds the SMB server settings.
//
// Defaults (applied by ApplyDefaults for zero values):
//   - Port: 445
//   - Timeouts: read 5m, write 30s, idle 15m, shutdown 30s
//   - MaxMessageSize: 8MiB + 4KiB
//   - Signing.Enabled: true
//   - ComputerName: DITTOSMB
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the IP to listen on. Empty binds all interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address,omitempty"`

	// Port is the TCP port. Defaults to 445, which needs privileges.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxConnections caps concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// MaxMessageSize rejects larger frames before reading them.
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" validate:"gte=68" yaml:"max_message_size"`

	// MetricsLogInterval enables a periodic connection count log line.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0" yaml:"metrics_log_interval"`

	// ServerGUID is advertised in NEGOTIATE responses. Empty generates a
	// fresh GUID per process.
	ServerGUID string `mapstructure:"server_guid" validate:"omitempty,uuid" yaml:"server_guid,omitempty"`

	// ComputerName appears in NTLM challenges.
	ComputerName string `mapstructure:"computer_name" validate:"required,max=15" yaml:"computer_name"`

	Signing SigningConfig `mapstructure:"signing" yaml:"signing"`

	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 5 * time.Minute
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 15 * time.Minute
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ComputerName == "" {
		c.ComputerName = "DITTOSMB"
	}
	if c.Auth.MaxClockSkew == 0 {
		c.Auth.MaxClockSkew = 5 * time.Minute
	}
	c.Signing.applyDefaults()
}

func (c *SigningConfig) applyDefaults() {
	if c.Enabled == nil || (c.Required && !*c.Enabled) {
		enabled := true
		c.Enabled = &enabled
	}
}

// Policy converts to the connection-layer policy. ApplyDefaults must have
// run.
func (c SigningConfig) Policy() smb.SigningConfig {
	return smb.SigningConfig{
		Enabled:  c.Enabled != nil && *c.Enabled,
		Required: c.Required,
	}
}

// KerberosEnabled reports whether a keytab is configured.
func (c AuthConfig) KerberosEnabled() bool {
	return c.KeytabPath != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid SMB config: %w", err)
	}
	if !c.Auth.Guest && !c.Auth.KerberosEnabled() {
		return fmt.Errorf("invalid SMB config: no authentication mechanism enabled (set auth.guest or auth.keytab_path)")
	}
	return nil
}

// serverGUID parses ServerGUID, generating one when unset. Validate has
// already checked the format.
func (c *Config) serverGUID() uuid.UUID {
	if c.ServerGUID == "" {
		return uuid.New()
	}
	return uuid.MustParse(c.ServerGUID)
}
