package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yesman/middleman/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Ingestor runs one ingestion pass
type Ingestor interface {
	Ingest(ctx context.Context) error
}

// Scheduler wakes at a fixed wall-clock time and from then on runs the
// ingestion pass, sleeping a fixed interval between passes.
type Scheduler struct {
	cfg      *config.Config
	job      Ingestor
	cron     *cron.Cron
	stopChan chan struct{}
	stopOnce sync.Once
	wakeOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, job Ingestor) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		job:      job,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start registers the daily wake and starts the cron scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.WakeCron, func() {
		s.wake(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule wake: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.WakeCron).
		Dur("repeat_interval", s.cfg.RepeatInterval).
		Msg("Daily wake scheduled")

	if s.cfg.RunOnStart {
		s.wake(ctx)
	}

	return nil
}

// Stop stops the scheduler and waits for an in-flight pass to return
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// wake starts the repeat loop; later wakes while it is active are ignored
func (s *Scheduler) wake(ctx context.Context) {
	started := false
	s.wakeOnce.Do(func() {
		started = true
		s.wg.Add(1)
		go s.repeat(ctx)
	})

	if !started {
		log.Debug().Msg("Wake ignored, ingestion loop already active")
	}
}

// repeat runs a pass, then sleeps the repeat interval, until stopped
func (s *Scheduler) repeat(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.runOnce(ctx)

		log.Debug().
			Dur("sleep", s.cfg.RepeatInterval).
			Msg("Sleeping until next ingestion pass")

		timer := time.NewTimer(s.cfg.RepeatInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Context cancelled, stopping ingestion loop")
			return
		case <-s.stopChan:
			timer.Stop()
			log.Info().Msg("Stop signal received, stopping ingestion loop")
			return
		case <-timer.C:
		}
	}
}

// runOnce executes one pass; failures are logged and never stop the loop
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Ingestion pass panicked")
		}
	}()

	if err := s.job.Ingest(ctx); err != nil {
		log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Ingestion pass failed")
		return
	}

	log.Info().
		Dur("duration", time.Since(start)).
		Msg("Ingestion pass complete")
}
