package scraper

import (
	"bytes"
	"context"

	"yesman/middleman/internal/client"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Getter is the subset of the HTTP session the scraper needs
type Getter interface {
	Get(ctx context.Context, endpoint, url string) (*client.Response, error)
}

// NameResolver extracts a display name from a profile fragment
type NameResolver struct {
	http   Getter
	logger zerolog.Logger
}

// NewNameResolver creates a resolver over the shared session
func NewNameResolver(http Getter, logger zerolog.Logger) *NameResolver {
	return &NameResolver{http: http, logger: logger}
}

// ResolveName fetches locator and returns the text of its first <b> element.
// Failed requests, non-2xx responses and pages without a bold element yield false.
func (r *NameResolver) ResolveName(ctx context.Context, locator string) (string, bool) {
	resp, err := r.http.Get(ctx, "profile", locator)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", locator).Msg("Profile request failed")
		return "", false
	}
	if !resp.OK() {
		r.logger.Debug().Int("status", resp.StatusCode).Str("url", locator).Msg("Profile request returned non-success status")
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		r.logger.Debug().Err(err).Str("url", locator).Msg("Failed to parse profile page")
		return "", false
	}

	return FirstBoldText(doc)
}

// FirstBoldText returns the text of the first <b> element in document order.
// An empty element counts as no name.
func FirstBoldText(doc *goquery.Document) (string, bool) {
	bold := doc.Find("b").First()
	if bold.Length() == 0 {
		return "", false
	}

	name := bold.Text()
	if name == "" {
		return "", false
	}
	return name, true
}
