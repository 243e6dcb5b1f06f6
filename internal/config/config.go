package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported history store backends
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Upstream endpoints
	LeaderboardURL string        `envconfig:"LEADERBOARD_URL" required:"true"`
	HistoryBaseURL string        `envconfig:"HISTORY_BASE_URL" required:"true"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) yesman-middleman/1.0"`

	// Snapshot
	SnapshotPath string `envconfig:"SNAPSHOT_PATH" default:"./resources/leaderboard.json"`

	// Resolution
	MaxEntries     int           `envconfig:"MAX_ENTRIES" default:"500"`
	UserIDPrefix   string        `envconfig:"USER_ID_PREFIX" default:"u29_"`
	GameFilter     string        `envconfig:"GAME_FILTER" default:"fulda"`
	MaxHistoryRows int           `envconfig:"MAX_HISTORY_ROWS" default:"10"`
	MinDelay       time.Duration `envconfig:"MIN_DELAY" default:"3s"`
	MaxDelay       time.Duration `envconfig:"MAX_DELAY" default:"6s"`

	// Outbound rate ceiling
	RequestRPS   float64 `envconfig:"REQUEST_RPS" default:"2"`
	RequestBurst int     `envconfig:"REQUEST_BURST" default:"2"`

	// Database
	DatabaseDriver   string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"../database/yesman.db"`
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"yesman"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"yesman"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis (run lock)
	RedisEnabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RunLockTTL    time.Duration `envconfig:"RUN_LOCK_TTL" default:"2h"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFile  string `envconfig:"LOG_FILE" default:"logs/yesman-middleman.log"`

	// Scheduler
	WakeCron       string        `envconfig:"WAKE_CRON" default:"0 11 * * *"`
	RepeatInterval time.Duration `envconfig:"REPEAT_INTERVAL" default:"1h"`
	RunOnStart     bool          `envconfig:"RUN_ON_START" default:"false"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if present
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LeaderboardURL == "" {
		return fmt.Errorf("LEADERBOARD_URL is required")
	}

	if c.HistoryBaseURL == "" {
		return fmt.Errorf("HISTORY_BASE_URL is required")
	}

	if c.MaxEntries < 1 {
		return fmt.Errorf("MAX_ENTRIES must be at least 1, got %d", c.MaxEntries)
	}

	if c.MaxHistoryRows < 1 {
		return fmt.Errorf("MAX_HISTORY_ROWS must be at least 1, got %d", c.MaxHistoryRows)
	}

	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("MIN_DELAY (%s) must be non-negative and not exceed MAX_DELAY (%s)", c.MinDelay, c.MaxDelay)
	}

	if c.RequestRPS <= 0 || c.RequestBurst < 1 {
		return fmt.Errorf("REQUEST_RPS must be positive and REQUEST_BURST at least 1")
	}

	if c.RepeatInterval <= 0 {
		return fmt.Errorf("REPEAT_INTERVAL must be positive")
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabasePassword == "" {
			return fmt.Errorf("DATABASE_PASSWORD is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
