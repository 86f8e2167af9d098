// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package apiclient is the JSON-over-HTTP client shared by the outbound
// service clients. Every call is rate limited, bounded by a per-call timeout,
// and retried with exponential backoff on transport errors and 5xx responses.
// 4xx responses are returned immediately.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/cardinalhq/credrunner/internal/logctx"
)

const maxErrorBody = 4096

// Config is the common knob set for one outbound service.
type Config struct {
	BaseURL    string        `mapstructure:"baseURL"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries uint64        `mapstructure:"maxRetries"`
	RateLimit  float64       `mapstructure:"rateLimit" validate:"gte=0"`
	Burst      int           `mapstructure:"burst" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RateLimit:  10,
		Burst:      10,
	}
}

// Authorizer decorates an outgoing request with credentials.
type Authorizer func(ctx context.Context, req *http.Request) error

// StatusError is a non-2xx response.
type StatusError struct {
	Service    string
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d: %s", e.Service, e.Method, e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the status is in the server-error class.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackOff replaces the exponential backoff policy, mostly for tests.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

var retryCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/internal/apiclient")
	var err error
	retryCounter, err = meter.Int64Counter(
		"credrunner.apiclient.retries",
		metric.WithDescription("Outbound API call retries by service"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create apiclient.retries counter: %w", err))
	}
}

// New returns a client for service rooted at cfg.BaseURL.
func New(service string, cfg Config, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends body (JSON-encoded when not nil) to path and decodes a JSON
// response into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path string, body any, auth Authorizer, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
	}
	url := c.baseURL + path

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: rate limiter: %w", c.service, err))
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", c.service, err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != nil {
			if err := auth(ctx, req); err != nil {
				return backoff.Permanent(fmt.Errorf("%s: authorize request: %w", c.service, err))
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %s %s: %w", c.service, method, url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			se := &StatusError{Service: c.service, Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(b)}
			if se.Temporary() {
				return se
			}
			return backoff.Permanent(se)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", c.service, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("service", c.service)))
		logctx.FromContext(ctx).Warn("Retrying outbound call",
			slog.String("service", c.service),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(operation, b, notify)
}

// BearerToken authorizes with the current token from ts.
func BearerToken(ts oauth2.TokenSource) Authorizer {
	return func(_ context.Context, req *http.Request) error {
		tok, err := ts.Token()
		if err != nil {
			return err
		}
		tok.SetAuthHeader(req)
		return nil
	}
}

// Basic authorizes with HTTP basic auth.
func Basic(user, password string) Authorizer {
	return func(_ context.Context, req *http.Request) error {
		req.SetBasicAuth(user, password)
		return nil
	}
}

// BasicToken authorizes with an already-encoded basic credential.
func BasicToken(encoded string) Authorizer {
	return func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Basic "+encoded)
		return nil
	}
}
