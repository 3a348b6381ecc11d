package sparql

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// maxResponseBytes bounds a single result document.
const maxResponseBytes = 512 << 20

// DefaultUserAgent identifies the tool to public endpoints.
const DefaultUserAgent = "kgmerge/1.0 (https://github.com/sydlexius/kgmerge)"

// Client sends SELECT queries to registered endpoints.
type Client struct {
	client    *http.Client
	endpoints *Endpoints
	limiter   *RateLimiterMap
	userAgent string
	logger    *slog.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// NewClient creates a query client.
func NewClient(endpoints *Endpoints, limiter *RateLimiterMap, opts ClientOptions, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		endpoints: endpoints,
		limiter:   limiter,
		userAgent: ua,
		logger:    logger.With(slog.String("component", "sparql")),
	}
}

// Query runs query against the named endpoint and decodes the result set.
// It waits on the endpoint's rate limiter first and never retries.
func (c *Client) Query(ctx context.Context, endpoint, query string) (*ResultSet, error) {
	ep, err := c.endpoints.Get(endpoint)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx, ep.Name); err != nil {
		return nil, &ErrEndpointUnavailable{
			Endpoint: ep.Name,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	params := url.Values{
		"query":  {query},
		"format": {"json"},
	}
	reqURL := ep.URL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	c.logger.Debug("executing SPARQL query", slog.String("endpoint", ep.Name))

	resp, err := c.client.Do(req) //nolint:gosec // URL constructed from configured endpoint
	if err != nil {
		return nil, &ErrEndpointUnavailable{Endpoint: ep.Name, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ErrEndpointUnavailable{
			Endpoint:   ep.Name,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ErrEndpointUnavailable{
			Endpoint: ep.Name,
			Cause:    fmt.Errorf("reading response: %w", err),
		}
	}

	rs, err := DecodeBytes(body)
	if err != nil {
		return nil, &ErrMalformedResponse{Endpoint: ep.Name, Cause: err}
	}
	return rs, nil
}
