package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Verdant Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// SiteConfig contains site-specific information.
// Timezone is the single deployment timezone used for all schedule
// evaluation; it is never inferred from the host clock.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings for watering telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SchedulerConfig contains scheduler loop settings.
type SchedulerConfig struct {
	// TickInterval is the cadence of the driver tick in seconds.
	// Must be at most 30s so one-minute slots cannot fall between ticks.
	TickInterval int `yaml:"tick_interval"`

	// GracePeriod is how far in the past (seconds) a missed fire is still
	// honoured after a restart. Zero means one tick interval.
	GracePeriod int `yaml:"grace_period"`

	// Workers bounds the valve-command worker pool.
	Workers int `yaml:"workers"`

	// ManualRunMinutes is the safety cutoff applied to manual turn-on
	// commands so a forgotten valve cannot run indefinitely.
	ManualRunMinutes int `yaml:"manual_run_minutes"`
}

// GatewayConfig contains switch command retry settings.
type GatewayConfig struct {
	// CommandTimeout is the per-attempt deadline in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// RetryAttempts is the total number of attempts per command.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBaseDelay is the initial backoff delay in milliseconds,
	// doubled after each failed attempt.
	RetryBaseDelay int `yaml:"retry_base_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VERDANT_SECTION_KEY
// For example: VERDANT_DATABASE_PATH, VERDANT_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Verdant",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/verdant.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "verdant-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			TickInterval:     30,
			GracePeriod:      0, // one tick interval
			Workers:          4,
			ManualRunMinutes: 30,
		},
		Gateway: GatewayConfig{
			CommandTimeout: 10,
			RetryAttempts:  3,
			RetryBaseDelay: 500,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VERDANT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VERDANT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("VERDANT_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	if v := os.Getenv("VERDANT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VERDANT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VERDANT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("VERDANT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("VERDANT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA timezone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A tick slower than 30s can step over one-minute slots entirely.
	if c.Scheduler.TickInterval < 1 || c.Scheduler.TickInterval > 30 {
		errs = append(errs, "scheduler.tick_interval must be between 1 and 30 seconds")
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, "scheduler.workers must be at least 1")
	}
	if c.Scheduler.ManualRunMinutes < 1 || c.Scheduler.ManualRunMinutes > 360 {
		errs = append(errs, "scheduler.manual_run_minutes must be between 1 and 360")
	}

	if c.Gateway.RetryAttempts < 1 {
		errs = append(errs, "gateway.retry_attempts must be at least 1")
	}
	if c.Gateway.CommandTimeout < 1 {
		errs = append(errs, "gateway.command_timeout must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the deployment timezone as a *time.Location.
// Validate() guarantees the name resolves, so errors are not expected here.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Site.Timezone)
}

// TickInterval returns the scheduler tick cadence as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickInterval) * time.Second
}

// GracePeriod returns the missed-fire grace window as a Duration.
// Zero config falls back to one tick interval.
func (c *Config) GracePeriod() time.Duration {
	if c.Scheduler.GracePeriod <= 0 {
		return c.TickInterval()
	}
	return time.Duration(c.Scheduler.GracePeriod) * time.Second
}

// CommandTimeout returns the per-attempt valve command deadline.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Gateway.CommandTimeout) * time.Second
}

// RetryBaseDelay returns the initial command retry backoff.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Gateway.RetryBaseDelay) * time.Millisecond
}

// ManualRunDuration returns the safety cutoff for manual turn-on commands.
func (c *Config) ManualRunDuration() time.Duration {
	return time.Duration(c.Scheduler.ManualRunMinutes) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
