// Package upstream contains the typed HTTP clients used to verify
// cross-entity invariants against the user and project services. Each call
// is bounded by an independent connect timeout and response timeout; a 404
// is a normal outcome while every other failure surfaces as upstream
// unavailability. The clients never retry: retry policy belongs to callers.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/example/issue-tracker/internal/config"
	"github.com/example/issue-tracker/internal/faults"
)

const defaultMaxBodyBytes = 256 * 1024

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises a client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to reach the upstream.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBodyLimit adjusts how many bytes are read from upstream responses.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client is the shared fetch core for one upstream service. A circuit
// breaker fails calls fast once the upstream has produced repeated
// connection-level failures.
type Client struct {
	service         string
	baseURL         string
	httpClient      HTTPClient
	breaker         *gobreaker.CircuitBreaker
	logger          zerolog.Logger
	responseTimeout time.Duration
	maxBodyBytes    int64
}

// NewClient constructs a client for the named upstream service.
func NewClient(service string, cfg config.UpstreamConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(service) == "" {
		return nil, errors.New("upstream: service name is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("upstream %s: base url is required", service)
	}
	if cfg.ConnectTimeout <= 0 || cfg.ResponseTimeout <= 0 {
		return nil, fmt.Errorf("upstream %s: connect and response timeouts must be positive", service)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConnsPerHost: 8,
	}

	client := &Client{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
		},
		logger:          logger.With().Str("upstream", service).Logger(),
		responseTimeout: cfg.ResponseTimeout,
		maxBodyBytes:    defaultMaxBodyBytes,
	}

	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    service,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			client.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msgf("upstream %s: circuit breaker state changed", name)
		},
	})

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// fetch issues GET {base}/{kind}/{id} and decodes a 200 body into out.
// 404 maps to NotFoundUpstream; transport failures, breaker rejections and
// unexpected statuses map to UpstreamUnavailable.
func (c *Client) fetch(ctx context.Context, kind, id string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.responseTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, kind, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return faults.NewUpstreamUnavailable(c.service, err)
	}
	req.Header.Set("Accept", "application/json")

	result, err := c.breaker.Execute(func() (any, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn().Err(err).Msg("upstream call rejected by open circuit breaker")
		}
		return faults.NewUpstreamUnavailable(c.service, err)
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return faults.NewUpstreamUnavailable(c.service, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return faults.NewUpstreamUnavailable(c.service, fmt.Errorf("decode response: %w", err))
		}
		return nil
	case http.StatusNotFound:
		return faults.NewNotFoundUpstream(c.service, id)
	default:
		return faults.NewUpstreamUnavailable(c.service, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}
