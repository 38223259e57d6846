package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	// XDG_CONFIG_HOME works on every platform; HOME does not on Windows.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	for _, section := range []string{
		"# DittoSMB Configuration File",
		"logging:",
		"telemetry:",
		"metrics:",
		"api:",
		"smb:",
		"signing:",
		"shutdown_timeout:",
	} {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfigToPath_Force(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("First InitConfigToPath failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "garbage") {
		t.Error("Expected force to overwrite the file")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.SMB.Port != def.SMB.Port {
		t.Errorf("Expected port %d, got %d", def.SMB.Port, cfg.SMB.Port)
	}
	if cfg.SMB.Timeouts.Idle != 15*time.Minute {
		t.Errorf("Expected idle 15m, got %v", cfg.SMB.Timeouts.Idle)
	}
	if cfg.SMB.MaxMessageSize != def.SMB.MaxMessageSize {
		t.Errorf("Expected max message size %v, got %v", def.SMB.MaxMessageSize, cfg.SMB.MaxMessageSize)
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("Schema has no properties: %s", data)
	}
	for _, key := range []string{"logging", "smb", "shutdown_timeout"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema missing property %q", key)
		}
	}
}

func TestWatch_NoFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {})
	if err != ErrNoConfigFile {
		t.Fatalf("Expected ErrNoConfigFile, got %v", err)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: INFO\n"), 0600); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *Config, 16)
	if err := Watch(configPath, func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("logging:\n  level: DEBUG\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// A truncate-then-write may surface an intermediate empty file first.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Logging.Level == "DEBUG" {
				return
			}
		case <-deadline:
			t.Fatal("No reload to DEBUG observed")
		}
	}
}
