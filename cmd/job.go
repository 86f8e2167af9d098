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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/credrunner/config"
	"github.com/cardinalhq/credrunner/internal/jobs"
)

var jobLeaseOrg string

func init() {
	jobCmd.Flags().StringVar(&jobLeaseOrg, "lease-org", "", "Organization id the lease is held under (defaults to the configured one)")
	rootCmd.AddCommand(jobCmd)
}

var jobCmd = &cobra.Command{
	Use:       "job <process|persist|cleanup>",
	Short:     "Run one job once and print its result",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{jobs.JobProcess, jobs.JobPersist, jobs.JobCleanup},
	RunE: func(_ *cobra.Command, args []string) error {
		return runJobOnce(args[0])
	},
}

func runJobOnce(jobID string) error {
	if !slices.Contains([]string{jobs.JobProcess, jobs.JobPersist, jobs.JobCleanup}, jobID) {
		return fmt.Errorf("unknown job %q", jobID)
	}

	ctx, doneFx, err := setupTelemetry("credrunner-job")
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
	jc, _ := cfg.Jobs.Job(jobID)
	if jobLeaseOrg != "" {
		jc.OrgID = jobLeaseOrg
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.runner.Run(ctx, jobID, jc)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("job %s finished with status %d: %s", jobID, res.Status, res.Message)
	}
	return nil
}
