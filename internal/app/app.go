// Package app wires the worker's collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"strconv"

	"yesman/middleman/internal/cache"
	"yesman/middleman/internal/client"
	"yesman/middleman/internal/config"
	"yesman/middleman/internal/pipeline"
	"yesman/middleman/internal/repository"
	"yesman/middleman/internal/scraper"
	"yesman/middleman/internal/snapshot"

	"github.com/rs/zerolog"
)

// App holds the constructed collaborators for one process
type App struct {
	Store    repository.UsernameStore
	Cache    *cache.RedisCache // nil when Redis is disabled or unreachable
	Pipeline *pipeline.Pipeline
	Job      *pipeline.Job
}

// New builds the HTTP session, scraper, history store and pipeline
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	session := client.NewClient(client.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
		RPS:       cfg.RequestRPS,
		Burst:     cfg.RequestBurst,
		Logger:    logger.With().Str("component", "http").Logger(),
	})

	resolver := scraper.NewNameResolver(session, logger.With().Str("component", "resolver").Logger())
	fetcher := scraper.NewHistoryFetcher(session, resolver, scraper.HistoryConfig{
		BaseURL:    cfg.HistoryBaseURL,
		GameFilter: cfg.GameFilter,
		MaxRows:    cfg.MaxHistoryRows,
		MinDelay:   cfg.MinDelay,
		MaxDelay:   cfg.MaxDelay,
	}, logger.With().Str("component", "history").Logger())

	store, err := repository.Open(ctx, repository.Config{
		Driver:   cfg.DatabaseDriver,
		Path:     cfg.SQLitePath,
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	a := &App{Store: store}

	var opts []pipeline.Option
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			LockTTL:  cfg.RunLockTTL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Redis - continuing without run lock")
		} else {
			a.Cache = redisCache
			opts = append(opts, pipeline.WithRunLocker(redisCache), pipeline.WithSummaryRecorder(redisCache))
			logger.Info().Str("addr", cfg.RedisAddr()).Msg("Redis cache connected")
		}
	}

	a.Pipeline = pipeline.New(pipeline.Config{
		SnapshotPath: cfg.SnapshotPath,
		MaxEntries:   cfg.MaxEntries,
		UserIDPrefix: cfg.UserIDPrefix,
	}, fetcher, store, logger.With().Str("component", "pipeline").Logger(), opts...)

	downloader := snapshot.NewDownloader(session, cfg.LeaderboardURL, cfg.SnapshotPath,
		logger.With().Str("component", "downloader").Logger())
	a.Job = pipeline.NewJob(downloader, a.Pipeline, logger.With().Str("component", "job").Logger())

	return a, nil
}

// Close releases the store and cache connections
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
