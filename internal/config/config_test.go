package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("LEADERBOARD_URL", "https://example.test/leaderboard")
	t.Setenv("HISTORY_BASE_URL", "https://example.test/history?user=")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./resources/leaderboard.json", cfg.SnapshotPath)
	assert.Equal(t, 500, cfg.MaxEntries)
	assert.Equal(t, "u29_", cfg.UserIDPrefix)
	assert.Equal(t, "fulda", cfg.GameFilter)
	assert.Equal(t, 10, cfg.MaxHistoryRows)
	assert.Equal(t, 3*time.Second, cfg.MinDelay)
	assert.Equal(t, 6*time.Second, cfg.MaxDelay)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "0 11 * * *", cfg.WakeCron)
	assert.Equal(t, time.Hour, cfg.RepeatInterval)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("LEADERBOARD_URL", "")
	t.Setenv("HISTORY_BASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	setRequiredEnv(t)
	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"delay window inverted", func(c *Config) { c.MinDelay, c.MaxDelay = 6*time.Second, 3*time.Second }},
		{"negative delay", func(c *Config) { c.MinDelay = -time.Second }},
		{"zero entries", func(c *Config) { c.MaxEntries = 0 }},
		{"zero history rows", func(c *Config) { c.MaxHistoryRows = 0 }},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
		{"postgres without password", func(c *Config) { c.DatabaseDriver = DriverPostgres; c.DatabasePassword = "" }},
		{"zero rps", func(c *Config) { c.RequestRPS = 0 }},
		{"zero repeat interval", func(c *Config) { c.RepeatInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedisAddr(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}
