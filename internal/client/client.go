package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"yesman/middleman/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of a response body is read into memory
const maxBodyBytes = 10 << 20

// ErrBodyTooLarge is returned instead of a truncated body
var ErrBodyTooLarge = errors.New("response body too large")

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response carries a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Options configures the shared HTTP session
type Options struct {
	Timeout   time.Duration
	UserAgent string
	RPS       float64 // Request ceiling across the whole session
	Burst     int
	Logger    zerolog.Logger
}

// Client is the shared HTTP session used for every outbound request in a run.
// It reuses connections and enforces a process-wide request rate ceiling.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     zerolog.Logger
}

// NewClient creates a new HTTP session
func NewClient(opts Options) *Client {
	limit := rate.Inf
	burst := opts.Burst
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if burst < 1 {
		burst = 1
	}

	return &Client{
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Get performs a single GET request. No retries are attempted.
// A non-2xx status is not an error; callers inspect Response.OK.
func (c *Client) Get(ctx context.Context, endpoint, url string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", url).
		Msg("Making HTTP request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordHTTPRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		metrics.RecordHTTPRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		metrics.RecordHTTPRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, endpoint, maxBodyBytes)
	}

	metrics.RecordHTTPRequest(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start).Seconds())

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Dur("duration", time.Since(start)).
		Msg("HTTP request complete")

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// GetOK performs a GET request and returns the body, treating any non-2xx status as an error
func (c *Client) GetOK(ctx context.Context, endpoint, url string) ([]byte, error) {
	resp, err := c.Get(ctx, endpoint, url)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return resp.Body, nil
}
