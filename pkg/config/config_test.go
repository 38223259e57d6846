package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultsFillPartialFile(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
logging:
  level: "debug"

smb:
  port: 1445
  signing:
    required: true
  max_message_size: 1Mi
  timeouts:
    idle: 2m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if !cfg.SMB.Enabled {
		t.Error("Expected smb.enabled to default to true")
	}
	if cfg.SMB.Port != 1445 {
		t.Errorf("Expected smb port 1445, got %d", cfg.SMB.Port)
	}
	if !cfg.SMB.Signing.Required || cfg.SMB.Signing.Enabled == nil || !*cfg.SMB.Signing.Enabled {
		t.Errorf("Expected signing enabled and required, got %+v", cfg.SMB.Signing)
	}
	if cfg.SMB.MaxMessageSize != bytesize.MiB {
		t.Errorf("Expected max_message_size 1Mi, got %v", cfg.SMB.MaxMessageSize)
	}
	if cfg.SMB.Timeouts.Idle != 2*time.Minute {
		t.Errorf("Expected idle timeout 2m, got %v", cfg.SMB.Timeouts.Idle)
	}
	if cfg.SMB.Timeouts.Write != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.SMB.Timeouts.Write)
	}
	if !cfg.SMB.Auth.Guest {
		t.Error("Expected guest auth to default to true")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.SMB.Port != 445 {
		t.Errorf("Expected default SMB port 445, got %d", cfg.SMB.Port)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected default API port 9090, got %d", cfg.API.Port)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DITTOSMB_SMB_SIGNING_REQUIRED", "true")
	t.Setenv("DITTOSMB_SMB_PORT", "10445")
	t.Setenv("DITTOSMB_LOGGING_FORMAT", "json")
	t.Setenv("DITTOSMB_SMB_SERVER_GUID", "6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.SMB.Signing.Required {
		t.Error("Expected DITTOSMB_SMB_SIGNING_REQUIRED to apply")
	}
	if cfg.SMB.Port != 10445 {
		t.Errorf("Expected port 10445 from env, got %d", cfg.SMB.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format from env, got %q", cfg.Logging.Format)
	}
	if cfg.SMB.ServerGUID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("Expected server GUID from env, got %q", cfg.SMB.ServerGUID)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
logging:
  level: WARN
`)
	t.Setenv("DITTOSMB_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected env to win over file, got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
smb:
  server_guid: not-a-guid
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for malformed server_guid")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeFile(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[smb]
port = 1445
computer_name = "FILESRV"

[smb.signing]
required = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.SMB.ComputerName != "FILESRV" {
		t.Errorf("Expected computer name 'FILESRV', got %q", cfg.SMB.ComputerName)
	}
	if !cfg.SMB.Signing.Required {
		t.Error("Expected signing required from TOML")
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.SMB.Port = 2445
	cfg.SMB.Signing.Required = true
	cfg.SMB.ServerGUID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	if err := WriteConfig(cfg, path, false); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SMB.Port != 2445 || !loaded.SMB.Signing.Required {
		t.Errorf("Round trip lost SMB settings: %+v", loaded.SMB)
	}
	if loaded.SMB.MaxMessageSize != cfg.SMB.MaxMessageSize {
		t.Errorf("Expected max message size %v, got %v", cfg.SMB.MaxMessageSize, loaded.SMB.MaxMessageSize)
	}
	if loaded.SMB.Timeouts != cfg.SMB.Timeouts {
		t.Errorf("Expected timeouts %+v, got %+v", cfg.SMB.Timeouts, loaded.SMB.Timeouts)
	}
}

func TestConversions(t *testing.T) {
	cfg := GetDefaultConfig()

	lc := cfg.LoggerConfig()
	if lc.Level != "INFO" || lc.Format != "text" || lc.Output != "stdout" {
		t.Errorf("Unexpected logger config %+v", lc)
	}

	tc := cfg.Tracing("1.2.3")
	if tc.ServiceName != "dittosmb" || tc.ServiceVersion != "1.2.3" || tc.SampleRate != 1.0 {
		t.Errorf("Unexpected telemetry config %+v", tc)
	}

	pc := cfg.Profiling("1.2.3")
	if pc.Endpoint != "http://localhost:4040" || len(pc.ProfileTypes) != 6 {
		t.Errorf("Unexpected profiling config %+v", pc)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	want := filepath.Join(tmpDir, "dittosmb", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no config in a fresh directory")
	}
}
