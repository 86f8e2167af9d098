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
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field specs and 6-field specs with leading seconds,
// plus descriptors such as @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// JobRunner runs one orchestrator by id.
type JobRunner interface {
	Run(ctx context.Context, jobID string, jc JobConfig) Result
}

// stopGrace is how long Stop waits for runs to unwind after cancelling them.
const stopGrace = 30 * time.Second

// Scheduler fires orchestrators on their cron schedules. A tick that finds
// the previous run of the same job still going in this process is skipped.
type Scheduler struct {
	cron       *cron.Cron
	runner     JobRunner
	ll         *slog.Logger
	ctx        context.Context
	cancelRuns context.CancelFunc
	entries    map[string]cron.EntryID
}

func NewScheduler(runner JobRunner, cfg Config, ll *slog.Logger) (*Scheduler, error) {
	logger := cronLogger{ll: ll}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:  runner,
		ll:      ll,
		entries: map[string]cron.EntryID{},
	}
	s.ctx, s.cancelRuns = context.WithCancel(context.Background())

	for _, jobID := range []string{JobProcess, JobPersist, JobCleanup} {
		jc, _ := cfg.Job(jobID)
		if jc.Schedule == "" {
			ll.Info("Job not scheduled", slog.String("jobID", jobID))
			continue
		}
		id, err := s.cron.AddFunc(jc.Schedule, func() { s.fire(jobID, jc) })
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", jc.Schedule, jobID, err)
		}
		s.entries[jobID] = id
		ll.Info("Scheduled job", slog.String("jobID", jobID), slog.String("schedule", jc.Schedule), slog.String("orgID", jc.OrgID))
	}
	return s, nil
}

func (s *Scheduler) fire(jobID string, jc JobConfig) {
	res := s.runner.Run(s.ctx, jobID, jc)
	s.ll.Info("Job tick finished",
		slog.String("jobID", jobID),
		slog.Int("status", res.Status),
		slog.String("message", res.Message))
}

// Scheduled lists the job ids that have a cron entry.
func (s *Scheduler) Scheduled() []string {
	var ids []string
	for _, jobID := range []string{JobProcess, JobPersist, JobCleanup} {
		if _, ok := s.entries[jobID]; ok {
			ids = append(ids, jobID)
		}
	}
	return ids
}

// Start begins firing. Runs get ctx's values but not its cancellation, so a
// shutdown signal lets in-flight runs finish and settle their leases.
func (s *Scheduler) Start(ctx context.Context) {
	s.cancelRuns()
	s.ctx, s.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
}

// Stop halts new ticks and blocks until running jobs return. When ctx is done
// first, running jobs are cancelled and given stopGrace to release their
// leases.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.cancelRuns()
		return nil
	case <-ctx.Done():
	}

	s.ll.Warn("Running jobs did not finish in time, cancelling")
	s.cancelRuns()
	select {
	case <-done:
	case <-time.After(stopGrace):
	}
	return ctx.Err()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	ll *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.ll.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.ll.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
