// Package fetch is the shared HTTP client for feed and article page
// retrieval. It carries no retry policy; the next scheduled run is the retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultUserAgent = "NewsIngest/1.0"

// StatusError reports a non-2xx response so callers can classify HTTP
// failures without string parsing.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// IsTimeout reports whether err is a deadline/timeout failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

type Config struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBodyBytes caps the response body read; 0 means the default of 8MB.
	MaxBodyBytes int64
}

// Client fetches raw bytes over HTTP with a per-call timeout and
// identification headers.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewClient(cfg Config) *Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody == 0 {
		maxBody = 8 << 20
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    ua,
		maxBodyBytes: maxBody,
	}
}

// Get retrieves the URL and returns the body. Non-2xx responses return a
// *StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/html, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}
