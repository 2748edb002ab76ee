package config

import (
	"fmt"
	"os"

	"stock-pulse/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides validation and persistence.
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML file.
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in zero-valued broadcast settings with sane defaults
// so a minimal config file still runs.
func (c *Config) applyDefaults() {
	b := &c.Broadcast
	if b.QueueSize == 0 {
		b.QueueSize = 256
	}
	if b.SendBufferSize == 0 {
		b.SendBufferSize = 16
	}
	if b.RateLimitWindowSeconds == 0 {
		b.RateLimitWindowSeconds = 60
	}
	if b.RateLimitBudget == 0 {
		b.RateLimitBudget = 60
	}
	if b.HeartbeatIntervalSeconds == 0 {
		b.HeartbeatIntervalSeconds = 30
	}
	if b.HeartbeatTimeoutSeconds == 0 {
		b.HeartbeatTimeoutSeconds = 90
	}
	if b.SweepIntervalSeconds == 0 {
		b.SweepIntervalSeconds = 30
	}
	if b.HistorySize == 0 {
		b.HistorySize = 400
	}

	d := &c.DataSource
	if d.PollIntervalSeconds == 0 {
		d.PollIntervalSeconds = 15
	}
	if d.ClosedPollIntervalSeconds == 0 {
		d.ClosedPollIntervalSeconds = 300
	}
	if d.CooldownBaseSeconds == 0 {
		d.CooldownBaseSeconds = 30
	}
	if d.CooldownCapSeconds == 0 {
		d.CooldownCapSeconds = 900
	}
	if d.DataRetentionDays == 0 {
		d.DataRetentionDays = 7
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "none", "":
		// persistence is optional
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	if c.DataSource.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.DataSource.ClosedPollIntervalSeconds < c.DataSource.PollIntervalSeconds {
		return fmt.Errorf("closed poll interval cannot be shorter than the open one")
	}
	if c.DataSource.CooldownCapSeconds < c.DataSource.CooldownBaseSeconds {
		return fmt.Errorf("cooldown cap cannot be shorter than cooldown base")
	}
	if c.DataSource.DataRetentionDays <= 0 {
		return fmt.Errorf("data retention days must be greater than 0")
	}

	if c.Broadcast.RateLimitBudget <= 0 {
		return fmt.Errorf("rate limit budget must be greater than 0")
	}
	if c.Broadcast.HeartbeatTimeoutSeconds <= c.Broadcast.HeartbeatIntervalSeconds {
		return fmt.Errorf("heartbeat timeout must exceed heartbeat interval")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
