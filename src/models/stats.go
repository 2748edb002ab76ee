package models

// -----------------------------------------------------------------------------

// MServiceStats is the operational snapshot exposed on /api/stats.
type MServiceStats struct {
	ConnectionCount    int            `json:"connection_count"`
	SubscriptionCounts map[string]int `json:"subscription_counts"`
	MessagesSent       int64          `json:"messages_sent"`
	RateLimited        int64          `json:"rate_limited"`
	Errors             int64          `json:"errors"`
	UptimeSeconds      float64        `json:"uptime_seconds"`
	MarketOpen         bool           `json:"market_open"`
}
