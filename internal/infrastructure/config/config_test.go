package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
  timezone: "Europe/London"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
scheduler:
  tick_interval: 15
  workers: 2
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Site.Timezone != "Europe/London" {
		t.Errorf("Site.Timezone = %q, want %q", cfg.Site.Timezone, "Europe/London")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Scheduler.TickInterval != 15 {
		t.Errorf("Scheduler.TickInterval = %d, want 15", cfg.Scheduler.TickInterval)
	}
	// Unset sections keep defaults
	if cfg.Gateway.RetryAttempts != 3 {
		t.Errorf("Gateway.RetryAttempts = %d, want default 3", cfg.Gateway.RetryAttempts)
	}
	if cfg.Scheduler.ManualRunMinutes != 30 {
		t.Errorf("Scheduler.ManualRunMinutes = %d, want default 30", cfg.Scheduler.ManualRunMinutes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty site id", func(c *Config) { c.Site.ID = "" }},
		{"bad timezone", func(c *Config) { c.Site.Timezone = "Mars/Olympus" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"invalid port", func(c *Config) { c.API.Port = 0 }},
		{"tick too slow", func(c *Config) { c.Scheduler.TickInterval = 60 }},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }},
		{"manual run too long", func(c *Config) { c.Scheduler.ManualRunMinutes = 600 }},
		{"zero retry attempts", func(c *Config) { c.Gateway.RetryAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error, got nil")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VERDANT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("VERDANT_MQTT_HOST", "broker.example.com")
	t.Setenv("VERDANT_SITE_TIMEZONE", "Australia/Perth")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Site.Timezone != "Australia/Perth" {
		t.Errorf("Site.Timezone = %q, want env override", cfg.Site.Timezone)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.TickInterval(); got != 30*time.Second {
		t.Errorf("TickInterval() = %v, want 30s", got)
	}
	// Grace defaults to one tick interval when unset
	if got := cfg.GracePeriod(); got != 30*time.Second {
		t.Errorf("GracePeriod() = %v, want 30s", got)
	}
	cfg.Scheduler.GracePeriod = 120
	if got := cfg.GracePeriod(); got != 2*time.Minute {
		t.Errorf("GracePeriod() = %v, want 2m", got)
	}
	if got := cfg.ManualRunDuration(); got != 30*time.Minute {
		t.Errorf("ManualRunDuration() = %v, want 30m", got)
	}
	if got := cfg.RetryBaseDelay(); got != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay() = %v, want 500ms", got)
	}
}
