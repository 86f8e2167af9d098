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

package migrations

import (
	"os"
	"strings"
	"time"
)

// CheckMode defines how a schema version mismatch is handled at connect time.
type CheckMode int

const (
	// CheckModeWait waits for another process to finish migrating, failing after Timeout.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and continues. Used by admin commands.
	CheckModeWarn
	// CheckModeSkip does not check at all.
	CheckModeSkip
)

type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) {
		opts.Mode = mode
	}
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.Timeout = timeout
	}
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.RetryInterval = interval
	}
}

func WithAllowDirty(allow bool) CheckOption {
	return func(opts *CheckOptions) {
		opts.AllowDirty = allow
	}
}

// DefaultCheckOptions returns the defaults, overridden by PREFIX_MIGRATION_CHECK_*
// environment variables (ENABLED, TIMEOUT, RETRY_INTERVAL, ALLOW_DIRTY).
func DefaultCheckOptions(prefix string) CheckOptions {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	opts := CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       120 * time.Second,
		RetryInterval: 5 * time.Second,
	}
	if val := os.Getenv(prefix + "MIGRATION_CHECK_ENABLED"); val != "" && strings.ToLower(val) != "true" {
		opts.Mode = CheckModeSkip
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "MIGRATION_CHECK_TIMEOUT")); err == nil {
		opts.Timeout = d
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "MIGRATION_CHECK_RETRY_INTERVAL")); err == nil && d > 0 {
		opts.RetryInterval = d
	}
	if strings.ToLower(os.Getenv(prefix+"MIGRATION_CHECK_ALLOW_DIRTY")) == "true" {
		opts.AllowDirty = true
	}
	return opts
}

// Apply returns base with opts applied in order.
func Apply(base CheckOptions, opts ...CheckOption) CheckOptions {
	for _, o := range opts {
		o(&base)
	}
	return base
}
