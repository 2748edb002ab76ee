package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

const minimalYAML = `
name: test-service
host: 127.0.0.1
port: 8080
log_level: INFO
network:
  timeout: 10
  retries: 2
  concurrent_requests: 4
data_source:
  symbols: ["AAPL", "7203.T"]
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// -----------------------------------------------------------------------------

func TestNewConfig_AppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-service", cfg.Name)
	assert.Equal(t, []string{"AAPL", "7203.T"}, cfg.DataSource.Symbols)

	// Broadcast defaults kick in for everything unspecified
	assert.Equal(t, 256, cfg.Broadcast.QueueSize)
	assert.Equal(t, 60, cfg.Broadcast.RateLimitBudget)
	assert.Equal(t, 60, cfg.Broadcast.RateLimitWindowSeconds)
	assert.Equal(t, 30, cfg.Broadcast.HeartbeatIntervalSeconds)
	assert.Equal(t, 90, cfg.Broadcast.HeartbeatTimeoutSeconds)
	assert.Equal(t, 15, cfg.DataSource.PollIntervalSeconds)
	assert.Equal(t, 300, cfg.DataSource.ClosedPollIntervalSeconds)
	assert.Equal(t, 30, cfg.DataSource.CooldownBaseSeconds)
	assert.Equal(t, 900, cfg.DataSource.CooldownCapSeconds)
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewConfig_InvalidYAML(t *testing.T) {
	_, err := NewConfig(writeTempConfig(t, "{not yaml"))
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"privileged port", `
name: t
host: 127.0.0.1
port: 80
network: {timeout: 10, retries: 1, concurrent_requests: 2}
`},
		{"missing name", `
host: 127.0.0.1
port: 8080
network: {timeout: 10, retries: 1, concurrent_requests: 2}
`},
		{"sqlite without path", `
name: t
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite}
network: {timeout: 10, retries: 1, concurrent_requests: 2}
`},
		{"unknown db type", `
name: t
host: 127.0.0.1
port: 8080
storage: {db_type: mongodb}
network: {timeout: 10, retries: 1, concurrent_requests: 2}
`},
		{"zero timeout", `
name: t
host: 127.0.0.1
port: 8080
network: {timeout: 0, retries: 1, concurrent_requests: 2}
`},
		{"closed interval shorter than open", `
name: t
host: 127.0.0.1
port: 8080
network: {timeout: 10, retries: 1, concurrent_requests: 2}
data_source: {poll_interval_seconds: 60, closed_poll_interval_seconds: 30}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(writeTempConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

// -----------------------------------------------------------------------------

func TestConfig_SaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(out))

	reloaded, err := NewConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.DataSource.Symbols, reloaded.DataSource.Symbols)
	assert.Equal(t, cfg.Broadcast.QueueSize, reloaded.Broadcast.QueueSize)
}
