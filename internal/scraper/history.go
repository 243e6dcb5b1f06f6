package scraper

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"yesman/middleman/internal/metrics"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Resolver turns a discovered profile link into a display name
type Resolver interface {
	ResolveName(ctx context.Context, locator string) (string, bool)
}

// HistoryConfig configures a HistoryFetcher
type HistoryConfig struct {
	BaseURL    string // Per-user history endpoint; the userid is appended verbatim
	GameFilter string // First-cell text a row must carry
	MaxRows    int    // Rows examined per page
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

// HistoryFetcher looks up a user's display name through their game history
type HistoryFetcher struct {
	http     Getter
	resolver Resolver
	cfg      HistoryConfig
	logger   zerolog.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHistoryFetcher creates a new fetcher
func NewHistoryFetcher(http Getter, resolver Resolver, cfg HistoryConfig, logger zerolog.Logger) *HistoryFetcher {
	return &HistoryFetcher{
		http:     http,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// FetchHistoryUsername waits a randomized politeness delay, loads the user's
// history page and resolves the name behind the first matching game row.
func (f *HistoryFetcher) FetchHistoryUsername(ctx context.Context, userID string) (name string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Str("userid", userID).
				Interface("panic", r).
				Msg("Recovered from panic while fetching game history")
			metrics.RecordResolution("error")
			name, ok = "", false
		}
	}()

	name, ok, err := f.fetch(ctx, userID)
	switch {
	case err != nil:
		f.logger.Error().Err(err).Str("userid", userID).Msg("Failed to fetch game history")
		metrics.RecordResolution("error")
	case !ok:
		metrics.RecordResolution("not_found")
	default:
		metrics.RecordResolution("resolved")
	}
	return name, ok
}

func (f *HistoryFetcher) fetch(ctx context.Context, userID string) (string, bool, error) {
	if err := f.sleep(ctx, f.politenessDelay()); err != nil {
		return "", false, fmt.Errorf("politeness delay interrupted: %w", err)
	}

	resp, err := f.http.Get(ctx, "history", f.cfg.BaseURL+userID)
	if err != nil {
		return "", false, err
	}
	if !resp.OK() {
		f.logger.Debug().
			Str("userid", userID).
			Int("status", resp.StatusCode).
			Msg("History page returned non-success status")
		return "", false, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse history page: %w", err)
	}

	link, found := FindGameLink(doc, f.cfg.GameFilter, f.cfg.MaxRows)
	if !found {
		f.logger.Debug().Str("userid", userID).Msg("No matching game row in history")
		return "", false, nil
	}

	name, ok := f.resolver.ResolveName(ctx, link)
	return name, ok, nil
}

// politenessDelay picks a uniformly random duration in [MinDelay, MaxDelay]
func (f *HistoryFetcher) politenessDelay() time.Duration {
	span := f.cfg.MaxDelay - f.cfg.MinDelay
	if span <= 0 {
		return f.cfg.MinDelay
	}
	return f.cfg.MinDelay + time.Duration(rand.Float64()*float64(span))
}

// FindGameLink scans the first maxRows table rows for one with exactly three
// cells, filter as the trimmed text of the first cell and a linked third cell.
// It returns the href of the first such row.
func FindGameLink(doc *goquery.Document, filter string, maxRows int) (string, bool) {
	var link string
	found := false

	doc.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= maxRows {
			return false
		}

		cells := row.Find("td")
		if cells.Length() != 3 {
			return true
		}
		if strings.TrimSpace(cells.Eq(0).Text()) != filter {
			return true
		}

		href, exists := cells.Eq(2).Find("a").First().Attr("href")
		if !exists {
			return true
		}

		link, found = href, true
		return false
	})

	return link, found
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
