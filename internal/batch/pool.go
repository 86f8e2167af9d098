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

// Package batch runs a per-item function over a list with a fixed number of
// workers, each walking its own contiguous slice in order.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/credrunner/internal/logctx"
)

type Config struct {
	Workers          int     `mapstructure:"workers" validate:"gte=1"`
	FailureThreshold float64 `mapstructure:"failureThreshold" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		Workers:          5,
		FailureThreshold: 0.2,
	}
}

// Summary is the aggregate outcome of one Run.
type Summary struct {
	Total             int
	Failures          int
	Elapsed           time.Duration
	ThresholdExceeded bool
}

// Pool carries the worker count and failure threshold for batch runs.
type Pool struct {
	name      string
	workers   int
	threshold float64
}

func NewPool(name string, cfg Config) *Pool {
	return &Pool{name: name, workers: cfg.Workers, threshold: cfg.FailureThreshold}
}

var (
	itemCounter      metric.Int64Counter
	thresholdCounter metric.Int64Counter
	batchDuration    metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/internal/batch")

	var err error
	itemCounter, err = meter.Int64Counter(
		"credrunner.batch.items",
		metric.WithDescription("Batch items processed by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batch.items counter: %w", err))
	}

	thresholdCounter, err = meter.Int64Counter(
		"credrunner.batch.threshold_exceeded",
		metric.WithDescription("Batches whose failure ratio exceeded the threshold"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batch.threshold_exceeded counter: %w", err))
	}

	batchDuration, err = meter.Float64Histogram(
		"credrunner.batch.duration",
		metric.WithDescription("Batch run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batch.duration histogram: %w", err))
	}
}

// Partition splits items into k contiguous slices. The first k-1 slices get
// len(items)/k items each and the last gets the rest. k < 1 is treated as 1.
func Partition[T any](items []T, k int) [][]T {
	if k < 1 {
		k = 1
	}
	size := len(items) / k
	out := make([][]T, k)
	for i := range k - 1 {
		out[i] = items[i*size : (i+1)*size]
	}
	out[k-1] = items[(k-1)*size:]
	return out
}

// Run applies fn to every item. An item fails when fn returns an error or
// panics; failures are counted and never stop other items. Crossing the
// failure threshold is logged and counted, not returned.
func Run[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) Summary {
	start := time.Now()
	ll := logctx.FromContext(ctx)
	parts := Partition(items, p.workers)
	failures := make([]int, len(parts))

	var g errgroup.Group
	for w, part := range parts {
		g.Go(func() error {
			for _, item := range part {
				if err := runOne(ctx, fn, item); err != nil {
					failures[w]++
					ll.Warn("Batch item failed", slog.String("batch", p.name), slog.Int("worker", w), slog.Any("error", err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{Total: len(items), Elapsed: time.Since(start)}
	for _, f := range failures {
		s.Failures += f
	}

	nameAttr := attribute.String("batch", p.name)
	itemCounter.Add(ctx, int64(s.Total-s.Failures), metric.WithAttributes(nameAttr, attribute.String("outcome", "ok")))
	itemCounter.Add(ctx, int64(s.Failures), metric.WithAttributes(nameAttr, attribute.String("outcome", "failed")))
	batchDuration.Record(ctx, s.Elapsed.Seconds(), metric.WithAttributes(nameAttr))

	if s.Total > 0 && float64(s.Failures)/float64(s.Total) > p.threshold {
		s.ThresholdExceeded = true
		thresholdCounter.Add(ctx, 1, metric.WithAttributes(nameAttr))
		ll.Warn("Failure threshold exceeded",
			slog.String("batch", p.name),
			slog.Int("total", s.Total),
			slog.Int("failures", s.Failures),
			slog.Float64("threshold", p.threshold))
	}
	return s
}

func runOne[T any](ctx context.Context, fn func(context.Context, T) error, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, item)
}
