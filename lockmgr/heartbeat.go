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
	"context"
	"log/slog"
	"sync"
	"time"
)

type heartbeatFunc func(ctx context.Context) error

type heartbeater struct {
	beat     heartbeatFunc
	interval time.Duration
	ll       *slog.Logger
}

func newHeartbeater(beat heartbeatFunc, interval time.Duration, ll *slog.Logger) *heartbeater {
	if ll == nil {
		ll = slog.Default()
	}
	return &heartbeater{
		beat:     beat,
		interval: interval,
		ll:       ll.With(slog.String("component", "lease-heartbeat")),
	}
}

// start beats once immediately, then every interval. The returned func stops
// the loop and waits for an in-flight beat to finish.
func (h *heartbeater) start(ctx context.Context) context.CancelFunc {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.run(hbCtx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (h *heartbeater) run(ctx context.Context) {
	h.send(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *heartbeater) send(ctx context.Context) {
	if err := h.beat(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.ll.Error("Lease heartbeat failed (continuing)", slog.Any("error", err))
	}
}
