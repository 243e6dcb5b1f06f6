package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yesman/middleman/internal/cache"
	"yesman/middleman/internal/metrics"
	"yesman/middleman/internal/models"
	"yesman/middleman/internal/repository"
	"yesman/middleman/internal/snapshot"

	"github.com/rs/zerolog"
)

// UsernameFetcher resolves a userid to a display name
type UsernameFetcher interface {
	FetchHistoryUsername(ctx context.Context, userID string) (string, bool)
}

// HistoryStore receives the resolved batch
type HistoryStore interface {
	UpsertHistory(ctx context.Context, records []models.ResolvedRecord) (repository.UpsertSummary, error)
}

// RunLocker guards against overlapping runs across processes
type RunLocker interface {
	AcquireRunLock(ctx context.Context) (func(), error)
}

// SummaryRecorder keeps the outcome of the latest run
type SummaryRecorder interface {
	SaveRunSummary(ctx context.Context, summary cache.RunSummary) error
}

// Config controls which snapshot rows are resolved
type Config struct {
	SnapshotPath string
	MaxEntries   int
	UserIDPrefix string
}

// Pipeline resolves leaderboard snapshots into username history
type Pipeline struct {
	cfg     Config
	fetcher UsernameFetcher
	store   HistoryStore
	locker  RunLocker       // optional
	summary SummaryRecorder // optional
	logger  zerolog.Logger
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithRunLocker makes Run hold a cross-process lock
func WithRunLocker(l RunLocker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithSummaryRecorder makes Run persist its outcome
func WithSummaryRecorder(r SummaryRecorder) Option {
	return func(p *Pipeline) { p.summary = r }
}

// New creates a pipeline
func New(cfg Config, fetcher UsernameFetcher, store HistoryStore, logger zerolog.Logger, opts ...Option) *Pipeline {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = models.MaxLeaderboardEntries
	}
	p := &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve builds one record per snapshot entry, up to MaxEntries, in snapshot
// order. Lookups run strictly one at a time.
func (p *Pipeline) Resolve(ctx context.Context, snap *models.Snapshot) []models.ResolvedRecord {
	rows := snap.Rows
	if len(rows) > p.cfg.MaxEntries {
		rows = rows[:p.cfg.MaxEntries]
	}

	records := make([]models.ResolvedRecord, 0, len(rows))
	for i := range rows {
		entry := &rows[i]
		userID := models.StripPrefix(string(entry.ID), p.cfg.UserIDPrefix)

		var username sql.NullString
		if name, ok := p.fetcher.FetchHistoryUsername(ctx, userID); ok {
			username = sql.NullString{String: name, Valid: true}
		}

		rec := entry.ToResolvedRecord(i+1, p.cfg.UserIDPrefix, username)
		records = append(records, rec)

		p.logger.Debug().
			Int("position", rec.Position).
			Str("userid", rec.UserID).
			Str("username", rec.Username.String).
			Bool("resolved", rec.Username.Valid).
			Msg("Resolved leaderboard entry")
	}

	return records
}

// RunSnapshot parses a raw snapshot, resolves it and writes the batch.
// A malformed snapshot is logged and skipped without touching the store.
func (p *Pipeline) RunSnapshot(ctx context.Context, data []byte) (*cache.RunSummary, error) {
	snap, err := models.ParseSnapshot(data)
	if err != nil {
		return nil, p.handleParseError(err)
	}
	return p.process(ctx, snap)
}

// Run loads the snapshot file and processes it
func (p *Pipeline) Run(ctx context.Context) (err error) {
	start := time.Now()
	summary := &cache.RunSummary{StartedAt: start, Status: "failed"}

	if p.locker != nil {
		release, lockErr := p.locker.AcquireRunLock(ctx)
		if errors.Is(lockErr, cache.ErrLockHeld) {
			p.logger.Warn().Msg("Another ingestion run is in progress, skipping")
			return nil
		}
		if lockErr != nil {
			p.logger.Warn().Err(lockErr).Msg("Run lock unavailable, continuing without it")
		} else {
			defer release()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion run panicked: %v", r)
		}
		p.finish(ctx, summary, start, err)
	}()

	snap, err := p.load()
	if err != nil {
		return err
	}
	if snap == nil {
		summary.Status = "skipped"
		return nil
	}

	result, err := p.process(ctx, snap)
	if result != nil {
		summary.Records = result.Records
		summary.Inserted = result.Inserted
		summary.Unchanged = result.Unchanged
	}
	if err != nil {
		return err
	}

	summary.Status = "success"
	return nil
}

func (p *Pipeline) load() (*models.Snapshot, error) {
	snap, err := snapshot.Load(p.cfg.SnapshotPath)
	if err != nil {
		return nil, p.handleParseError(err)
	}
	return snap, nil
}

func (p *Pipeline) handleParseError(err error) error {
	if errors.Is(err, models.ErrMalformedSnapshot) {
		p.logger.Warn().Err(err).Msg("Invalid JSON structure or 'rows' list not found")
		metrics.RecordError("pipeline", "malformed_snapshot")
		return nil
	}
	return err
}

func (p *Pipeline) process(ctx context.Context, snap *models.Snapshot) (*cache.RunSummary, error) {
	p.logger.Info().
		Int("rows", len(snap.Rows)).
		Int("max_entries", p.cfg.MaxEntries).
		Msg("Processing usernames")

	records := p.Resolve(ctx, snap)
	result := &cache.RunSummary{Records: len(records)}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run cancelled before store write: %w", err)
	}

	upsert, err := p.store.UpsertHistory(ctx, records)
	if err != nil {
		return result, fmt.Errorf("failed to store username history: %w", err)
	}
	result.Inserted = upsert.Inserted
	result.Unchanged = upsert.Unchanged

	p.logger.Info().
		Int("records", len(records)).
		Int64("inserted", upsert.Inserted).
		Int64("unchanged", upsert.Unchanged).
		Msg("Username history updated")

	return result, nil
}

func (p *Pipeline) finish(ctx context.Context, summary *cache.RunSummary, start time.Time, err error) {
	summary.FinishedAt = time.Now()
	if err != nil {
		summary.Error = err.Error()
		metrics.RecordError("pipeline", "run")
	}
	metrics.RecordRun(summary.Status, summary.Records, time.Since(start).Seconds())

	if p.summary == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if saveErr := p.summary.SaveRunSummary(saveCtx, *summary); saveErr != nil {
		p.logger.Warn().Err(saveErr).Msg("Failed to save run summary")
	}
}
