package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"api port out of range", func(c *Config) { c.API.Port = 70000 }, "max"},
		{"api bind address", func(c *Config) { c.API.BindAddress = "localhost" }, "ip"},
		{"api jwt secret too short", func(c *Config) { c.API.JWTSecret = "hunter2" }, "min"},
		{"api jwt secret", func(c *Config) { c.API.JWTSecret = strings.Repeat("k", 32) }, ""},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "lte"},
		{"profile type", func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"heap"} }, "oneof"},
		{"smb port", func(c *Config) { c.SMB.Port = -1 }, "min"},
		{"smb server guid", func(c *Config) { c.SMB.ServerGUID = "xyz" }, "uuid"},
		{"computer name too long", func(c *Config) { c.SMB.ComputerName = "ABCDEFGHIJKLMNOPQ" }, "max"},
		{"no auth", func(c *Config) { c.SMB.Auth.Guest = false }, "no authentication mechanism"},
		{"keytab without principal", func(c *Config) { c.SMB.Auth.KeytabPath = "/etc/krb5.keytab" }, "required_with"},
		{"smb disabled skips smb rules", func(c *Config) {
			c.SMB.Enabled = false
			c.SMB.Auth.Guest = false
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
