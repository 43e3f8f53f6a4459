// Package reddit implements the platform contracts against Reddit's
// JSON API: the submission stream, the wiki document store, and the
// link publisher.
package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/ratelimit"
)

const (
	defaultBaseURL      = "https://oauth.reddit.com"
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultListing      = "all"
	// Reddit's OAuth quota is 60 requests per minute.
	requestsPerSecond = 1.0
	requestBurst      = 5
)

type Config struct {
	BaseURL      string
	UserAgent    string
	Token        string
	Listing      string
	PollInterval time.Duration
}

// Client is a thin authenticated HTTP client shared by the stream,
// wiki, and publisher surfaces. The token is treated as opaque; how it
// was obtained is out of scope here.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("reddit: user agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Listing == "" {
		cfg.Listing = defaultListing
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: ratelimit.New(requestsPerSecond, requestBurst),
		log:     log,
	}, nil
}

// get issues a paced GET and classifies failures into the transport
// taxonomy. The caller owns the response body on success.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// postForm issues a paced form POST with the same classification.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &platform.TransportError{Kind: platform.ConnectionFailed, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &platform.TransportError{Kind: platform.ConnectionFailed, Err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &platform.TransportError{
			Kind: platform.ServiceUnavailable,
			Err:  fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &platform.PlatformError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: fmt.Sprintf("%s %s", method, path),
		}
	}
	return payload, nil
}
