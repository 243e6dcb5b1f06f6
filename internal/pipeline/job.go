package pipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// Downloader refreshes the local snapshot file
type Downloader interface {
	Download(ctx context.Context) error
}

// Job is one scheduled ingestion pass: refresh the snapshot, then process it
type Job struct {
	downloader Downloader
	pipeline   *Pipeline
	logger     zerolog.Logger
}

// NewJob creates a new ingestion job
func NewJob(downloader Downloader, pipeline *Pipeline, logger zerolog.Logger) *Job {
	return &Job{downloader: downloader, pipeline: pipeline, logger: logger}
}

// Ingest downloads the leaderboard and processes usernames. A failed download
// is logged and the previous snapshot on disk is processed instead.
func (j *Job) Ingest(ctx context.Context) error {
	j.logger.Debug().Msg("Downloading leaderboard...")
	if err := j.downloader.Download(ctx); err != nil {
		j.logger.Error().Err(err).Msg("Leaderboard download failed, using previous snapshot")
	}

	j.logger.Debug().Msg("Processing usernames...")
	if err := j.pipeline.Run(ctx); err != nil {
		return err
	}
	j.logger.Debug().Msg("Processing finished")
	return nil
}
