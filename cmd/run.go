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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/credrunner/config"
	"github.com/cardinalhq/credrunner/internal/debugging"
	"github.com/cardinalhq/credrunner/internal/healthcheck"
	"github.com/cardinalhq/credrunner/internal/jobs"
)

const shutdownTimeout = 10 * time.Minute

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the process, persist and cleanup jobs on their schedules",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runScheduler()
	},
}

// recordingRunner reports every finished run to the health server.
type recordingRunner struct {
	next   jobs.JobRunner
	health *healthcheck.Server
}

func (r recordingRunner) Run(ctx context.Context, jobID string, jc jobs.JobConfig) jobs.Result {
	res := r.next.Run(ctx, jobID, jc)
	r.health.RecordRun(healthcheck.Run{
		JobID:      jobID,
		Status:     res.Status,
		Message:    res.Message,
		FinishedAt: time.Now(),
	})
	return res
}

func runScheduler() error {
	ctx, doneFx, err := setupTelemetry("credrunner-scheduler")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := debugging.RunPprof(ctx, cfg.Debug); err != nil {
		slog.Warn("Profiler not started", slog.Any("error", err))
	}

	health := healthcheck.NewServer(cfg.Health)
	go func() {
		if err := health.Start(ctx); err != nil {
			slog.Error("Health check server stopped", slog.Any("error", err))
		}
	}()
	health.SetReadyCondition("scheduler", false)

	a, err := newApp(ctx, cfg)
	if err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	defer a.Close()

	sched, err := jobs.NewScheduler(recordingRunner{next: a.runner, health: health}, cfg.Jobs, slog.Default())
	if err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	sched.Start(ctx)
	health.SetStatus(healthcheck.StatusHealthy)
	health.SetReadyCondition("scheduler", true)
	slog.Info("Scheduler started", slog.Any("jobs", sched.Scheduled()))

	<-ctx.Done()
	slog.Info("Shutting down scheduler, waiting for running jobs")
	health.SetReadyCondition("scheduler", false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("scheduler did not stop cleanly: %w", err)
	}
	slog.Info("Scheduler stopped")
	return nil
}
