package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	runLockKey    = "yesman:ingest:lock"
	lastRunKey    = "yesman:ingest:last_run"
	lastRunMaxAge = 30 * 24 * time.Hour
)

// ErrLockHeld is returned when another process is already running an ingestion pass
var ErrLockHeld = errors.New("ingestion run lock is held by another process")

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// RunSummary describes the outcome of one ingestion pass
type RunSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Inserted   int64     `json:"inserted"`
	Unchanged  int64     `json:"unchanged"`
	Error      string    `json:"error,omitempty"`
}

// RedisCache provides the cross-process run lock and the last-run summary
type RedisCache struct {
	client  *redis.Client
	lockTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	return &RedisCache{client: client, lockTTL: ttl}, nil
}

// AcquireRunLock takes the run lock, returning a release func.
// ErrLockHeld means another process holds it.
func (c *RedisCache) AcquireRunLock(ctx context.Context) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ok, err := c.client.SetNX(ctx, runLockKey, token, c.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		// The run context may already be cancelled; releasing must still happen
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.client, []string{runLockKey}, token).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to release run lock")
		}
	}
	return release, nil
}

// SaveRunSummary stores the outcome of the latest run
func (c *RedisCache) SaveRunSummary(ctx context.Context, summary RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := c.client.Set(ctx, lastRunKey, data, lastRunMaxAge).Err(); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// LastRunSummary returns the stored summary, or nil if none exists
func (c *RedisCache) LastRunSummary(ctx context.Context) (*RunSummary, error) {
	data, err := c.client.Get(ctx, lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run summary: %w", err)
	}

	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &summary, nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
