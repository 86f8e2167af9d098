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

// Package authtoken holds the service token used for calls to the
// credential services and refreshes it ahead of expiry.
package authtoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

type Config struct {
	TokenURL     string        `mapstructure:"tokenURL"`
	ClientID     string        `mapstructure:"clientID"`
	ClientSecret string        `mapstructure:"clientSecret"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	RefreshLead  time.Duration `mapstructure:"refreshLead" validate:"gte=0"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		RefreshLead: 5 * time.Minute,
		Timeout:     10 * time.Second,
	}
}

// FetchFunc obtains a fresh token.
type FetchFunc func(ctx context.Context) (*oauth2.Token, error)

// PasswordGrant fetches tokens with the OAuth2 resource owner password grant.
func PasswordGrant(cfg Config) FetchFunc {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	return func(ctx context.Context) (*oauth2.Token, error) {
		return oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	}
}

var ErrClosed = errors.New("token cache is closed")

// refreshRetry spaces refresh attempts after a failed scheduled refresh.
const refreshRetry = 30 * time.Second

// Cache is an oauth2.TokenSource that keeps one token and schedules a single
// refresh at expiry minus the lead time. Each refresh stops the pending timer
// and schedules a new one.
type Cache struct {
	fetch   FetchFunc
	lead    time.Duration
	timeout time.Duration
	now     func() time.Time
	ll      *slog.Logger

	mu     sync.Mutex
	tok    *oauth2.Token
	timer  *time.Timer
	closed bool
}

var _ oauth2.TokenSource = (*Cache)(nil)

type Option func(*Cache)

func WithLogger(ll *slog.Logger) Option {
	return func(c *Cache) { c.ll = ll }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(fetch FetchFunc, lead, timeout time.Duration, opts ...Option) *Cache {
	c := &Cache{
		fetch:   fetch,
		lead:    lead,
		timeout: timeout,
		now:     time.Now,
		ll:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token, fetching a new one when there is none or
// it has expired.
func (c *Cache) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.validLocked() {
		return c.tok, nil
	}
	return c.refreshLocked()
}

func (c *Cache) refreshLocked() (*oauth2.Token, error) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	tok, err := c.fetch(ctx)
	if err != nil {
		if c.validLocked() {
			c.retryLocked()
		} else {
			c.tok = nil
		}
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	c.tok = tok
	c.scheduleLocked(tok)
	return tok, nil
}

// validLocked reports whether the cached token has not yet expired.
func (c *Cache) validLocked() bool {
	return c.tok != nil && (c.tok.Expiry.IsZero() || c.now().Before(c.tok.Expiry))
}

// retryLocked schedules another refresh after a failed one, no later than
// the cached token's expiry.
func (c *Cache) retryLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.tok.Expiry.IsZero() {
		return
	}
	wait := min(refreshRetry, c.tok.Expiry.Sub(c.now()))
	c.timer = time.AfterFunc(wait, c.scheduledRefresh)
}

func (c *Cache) scheduleLocked(tok *oauth2.Token) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if tok.Expiry.IsZero() {
		return
	}
	wait := tok.Expiry.Sub(c.now()) - c.lead
	if wait <= 0 {
		return
	}
	c.timer = time.AfterFunc(wait, c.scheduledRefresh)
}

func (c *Cache) scheduledRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ll.Info("Refreshing service token")
	if _, err := c.refreshLocked(); err != nil {
		c.ll.Warn("Error refreshing token before expiration", slog.Any("error", err), slog.Bool("keptToken", c.tok != nil))
	}
}

// Close stops the pending refresh. Later Token calls fail.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
