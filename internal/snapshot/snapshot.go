package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"yesman/middleman/internal/models"

	"github.com/rs/zerolog"
)

// Load reads a previously downloaded leaderboard snapshot from disk
func Load(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return models.ParseSnapshot(data)
}

// Fetcher is the subset of the HTTP session the downloader needs
type Fetcher interface {
	GetOK(ctx context.Context, endpoint, url string) ([]byte, error)
}

// Downloader refreshes the local snapshot file from the leaderboard endpoint
type Downloader struct {
	http   Fetcher
	url    string
	path   string
	logger zerolog.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(http Fetcher, url, path string, logger zerolog.Logger) *Downloader {
	return &Downloader{http: http, url: url, path: path, logger: logger}
}

// Download fetches the leaderboard and writes it, indented, to the snapshot path.
// The existing file is left untouched when the request or decoding fails.
func (d *Downloader) Download(ctx context.Context) error {
	body, err := d.http.GetOK(ctx, "leaderboard", d.url)
	if err != nil {
		return fmt.Errorf("failed to download leaderboard: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("leaderboard response is not valid JSON: %w", err)
	}

	if err := writeFileAtomic(d.path, out.Bytes()); err != nil {
		return err
	}

	d.logger.Info().
		Str("path", d.path).
		Int("size", out.Len()).
		Msg("Downloaded leaderboard to JSON")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".leaderboard-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
