package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	DataSource MDataSourceConfig `yaml:"data_source"`
	Broadcast  MBroadcastConfig  `yaml:"broadcast"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // "sqlite", "postgres" or "none"
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Proxies            []string `yaml:"proxies"`
	RequestTimeout     int      `yaml:"timeout"`
	MaxRetries         int      `yaml:"retries"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	UserAgent          string   `yaml:"user_agent"`
}

type MDataSourceConfig struct {
	Symbols                   []string `yaml:"symbols"`
	PollIntervalSeconds       int      `yaml:"poll_interval_seconds"`
	ClosedPollIntervalSeconds int      `yaml:"closed_poll_interval_seconds"`
	DataRetentionDays         int      `yaml:"data_retention_days"`
	CooldownBaseSeconds       int      `yaml:"cooldown_base_seconds"`
	CooldownCapSeconds        int      `yaml:"cooldown_cap_seconds"`
}

type MBroadcastConfig struct {
	QueueSize                int `yaml:"queue_size"`
	SendBufferSize           int `yaml:"send_buffer_size"`
	RateLimitWindowSeconds   int `yaml:"rate_limit_window_seconds"`
	RateLimitBudget          int `yaml:"rate_limit_budget"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int `yaml:"heartbeat_timeout_seconds"`
	SweepIntervalSeconds     int `yaml:"sweep_interval_seconds"`
	HistorySize              int `yaml:"history_size"`
}
