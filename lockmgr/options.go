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

package lockmgr

import (
	"log/slog"
	"time"
)

const (
	defaultHeartbeatInterval = time.Minute
	minHeartbeatInterval     = 10 * time.Second
)

type Options interface {
	apply(t *Tracker)
}

type heartbeatIntervalOption struct {
	d time.Duration
}

func (h *heartbeatIntervalOption) apply(t *Tracker) {
	t.heartbeatInterval = max(h.d, minHeartbeatInterval)
}

// WithHeartbeatInterval sets how often an active lease is refreshed.
// The default is 1 minute; anything under 10 seconds is raised to 10 seconds.
// Keep it well below the stale window of the jobs using the tracker.
func WithHeartbeatInterval(d time.Duration) Options {
	return &heartbeatIntervalOption{d: d}
}

type loggerOption struct {
	ll *slog.Logger
}

func (l *loggerOption) apply(t *Tracker) {
	t.ll = l.ll
}

func WithLogger(ll *slog.Logger) Options {
	return &loggerOption{ll: ll}
}
