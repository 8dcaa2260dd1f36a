// Package config handles engine configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (PULSE_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	database_url: postgres://localhost:5432/pulse?sslmode=disable
//	redis_url: redis://localhost:6379/0
//
//	schedules:
//	  system_stats_interval: 5m
//	  rollup_interval: 1h
//	  retention_interval: 1h
//
//	retention:
//	  heartbeat_window: 2160h   # 90 days
//	  analytics_window: 4320h   # 180 days
//
//	alerting:
//	  default_min_downtime: 5m
//	  business_hours_timezone: UTC
//	  webhook_url: https://oncall.example.com/hooks/pulse
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Server    ServerConfig    `yaml:"server"`
	Schedules ScheduleConfig  `yaml:"schedules"`
	Retention RetentionConfig `yaml:"retention"`
	Alerting  AlertingConfig  `yaml:"alerting"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ScheduleConfig defines background worker cadences.
type ScheduleConfig struct {
	// SystemStatsInterval is the fast cadence for system-wide snapshot
	// metrics recomputation.
	SystemStatsInterval time.Duration `yaml:"system_stats_interval"`

	// RollupInterval is the slow cadence for the full windows x monitors
	// historical recomputation.
	RollupInterval time.Duration `yaml:"rollup_interval"`

	// RetentionInterval is how often the retention sweeper runs.
	RetentionInterval time.Duration `yaml:"retention_interval"`

	// RegistryRefreshInterval is how often the monitor registry reloads
	// from the store.
	RegistryRefreshInterval time.Duration `yaml:"registry_refresh_interval"`
}

// RetentionConfig defines how long raw records are kept.
type RetentionConfig struct {
	// HeartbeatWindow is how long non-important heartbeats are retained.
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`

	// AnalyticsWindow is how long analytics events are retained.
	AnalyticsWindow time.Duration `yaml:"analytics_window"`
}

// AlertingConfig defines escalation behavior defaults.
type AlertingConfig struct {
	// DefaultMinDowntime applies when a monitor's policy leaves the
	// debounce threshold unset.
	DefaultMinDowntime time.Duration `yaml:"default_min_downtime"`

	// BusinessHoursTimezone is the IANA zone used to evaluate
	// business-hours-only policies.
	BusinessHoursTimezone string `yaml:"business_hours_timezone"`

	// WebhookURL is where OpenIncident/CloseIncident messages are posted.
	// Empty disables outbound delivery (incidents are logged only).
	WebhookURL string `yaml:"webhook_url"`

	// WebhookRatePerSecond bounds outbound incident delivery.
	WebhookRatePerSecond float64 `yaml:"webhook_rate_per_second"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "postgres://localhost:5432/pulse?sslmode=disable",
		RedisURL:    "redis://localhost:6379/0",
		Server: ServerConfig{
			Port: 8080,
		},
		Schedules: ScheduleConfig{
			SystemStatsInterval:     5 * time.Minute,
			RollupInterval:          time.Hour,
			RetentionInterval:       time.Hour,
			RegistryRefreshInterval: time.Minute,
		},
		Retention: RetentionConfig{
			HeartbeatWindow: 90 * 24 * time.Hour,
			AnalyticsWindow: 180 * 24 * time.Hour,
		},
		Alerting: AlertingConfig{
			DefaultMinDowntime:    5 * time.Minute,
			BusinessHoursTimezone: "UTC",
			WebhookRatePerSecond:  5,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Schedules.SystemStatsInterval <= 0 {
		return fmt.Errorf("schedules.system_stats_interval must be positive")
	}
	if c.Schedules.RollupInterval <= 0 {
		return fmt.Errorf("schedules.rollup_interval must be positive")
	}
	if c.Retention.HeartbeatWindow < 0 {
		return fmt.Errorf("retention.heartbeat_window must be >= 0")
	}
	if _, err := time.LoadLocation(c.Alerting.BusinessHoursTimezone); err != nil {
		return fmt.Errorf("alerting.business_hours_timezone: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the PULSE_ prefix:
// - PULSE_DATABASE_URL
// - PULSE_REDIS_URL
// - PULSE_WEBHOOK_URL
// - PULSE_BUSINESS_HOURS_TZ
// - PULSE_SYSTEM_STATS_INTERVAL (Go duration, e.g. "5m")
// - PULSE_ROLLUP_INTERVAL
// - PULSE_RETENTION_INTERVAL
// - PULSE_HEARTBEAT_RETENTION
// - PULSE_DEFAULT_MIN_DOWNTIME
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PULSE_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("PULSE_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("PULSE_WEBHOOK_URL"); v != "" {
		c.Alerting.WebhookURL = v
	}
	if v := os.Getenv("PULSE_BUSINESS_HOURS_TZ"); v != "" {
		c.Alerting.BusinessHoursTimezone = v
	}
	if d, ok := envDuration("PULSE_SYSTEM_STATS_INTERVAL"); ok {
		c.Schedules.SystemStatsInterval = d
	}
	if d, ok := envDuration("PULSE_ROLLUP_INTERVAL"); ok {
		c.Schedules.RollupInterval = d
	}
	if d, ok := envDuration("PULSE_RETENTION_INTERVAL"); ok {
		c.Schedules.RetentionInterval = d
	}
	if d, ok := envDuration("PULSE_HEARTBEAT_RETENTION"); ok {
		c.Retention.HeartbeatWindow = d
	}
	if d, ok := envDuration("PULSE_DEFAULT_MIN_DOWNTIME"); ok {
		c.Alerting.DefaultMinDowntime = d
	}
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
