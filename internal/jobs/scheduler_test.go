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

package jobs

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *recordingRunner) Run(_ context.Context, jobID string, _ JobConfig) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return Result{Status: 201}
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestNewScheduler_Entries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Persist.Schedule = ""
	cfg.Cleanup.Schedule = "@daily"

	s, err := NewScheduler(&recordingRunner{}, cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{JobProcess, JobCleanup}, s.Scheduled())
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Process.Schedule = "every now and then"
	_, err := NewScheduler(&recordingRunner{}, cfg, slog.Default())
	assert.ErrorContains(t, err, "job process")
}

func TestCronParser(t *testing.T) {
	for _, spec := range []string{"*/5 * * * *", "0 */5 * * * *", "@hourly"} {
		_, err := cronParser.Parse(spec)
		assert.NoError(t, err, spec)
	}
}

func TestScheduler_FiresAndStops(t *testing.T) {
	runner := &recordingRunner{}
	cfg := Config{Process: JobConfig{Schedule: "* * * * * *", OrgID: "system", StaleMins: 1}, OrgConcurrency: 1}
	s, err := NewScheduler(runner, cfg, slog.Default())
	require.NoError(t, err)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runner.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

// ctxRunner reports whether its run context was live when the run began and
// blocks until released.
type ctxRunner struct {
	started chan error
	release chan struct{}
}

func (r *ctxRunner) Run(ctx context.Context, _ string, _ JobConfig) Result {
	select {
	case r.started <- ctx.Err():
	default:
	}
	select {
	case <-r.release:
		return Result{Status: 201}
	case <-ctx.Done():
		return Result{Status: 500}
	}
}

func TestScheduler_SignalDoesNotCancelRuns(t *testing.T) {
	runner := &ctxRunner{started: make(chan error, 1), release: make(chan struct{})}
	cfg := Config{Process: JobConfig{Schedule: "* * * * * *", OrgID: "system", StaleMins: 5}, OrgConcurrency: 1}
	s, err := NewScheduler(runner, cfg, slog.Default())
	require.NoError(t, err)

	sigCtx, signal := context.WithCancel(context.Background())
	s.Start(sigCtx)

	var startErr error
	select {
	case startErr = <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
	require.NoError(t, startErr)

	signal()
	assert.NoError(t, s.ctx.Err(), "a shutdown signal must not cancel running jobs")

	close(runner.release)
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Error(t, s.ctx.Err(), "runs are cancelled once the scheduler has stopped")
}

func TestScheduler_StopTimeoutCancelsRuns(t *testing.T) {
	runner := &ctxRunner{started: make(chan error, 1), release: make(chan struct{})}
	cfg := Config{Process: JobConfig{Schedule: "* * * * * *", OrgID: "system", StaleMins: 5}, OrgConcurrency: 1}
	s, err := NewScheduler(runner, cfg, slog.Default())
	require.NoError(t, err)

	s.Start(context.Background())
	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(stopCtx), context.DeadlineExceeded)
	assert.Error(t, s.ctx.Err())
}
