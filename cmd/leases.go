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
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/lockmgr"
)

func init() {
	leasesCmd.AddCommand(leasesListCmd, leasesReleaseCmd)
	rootCmd.AddCommand(leasesCmd)
}

var leasesCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and clear job leases",
}

var leasesListCmd = &cobra.Command{
	Use:   "list [org]",
	Short: "List job leases, optionally for one organization",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var orgID string
		if len(args) == 1 {
			orgID = args[0]
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := holderdb.HolderDBStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.JobList(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORG\tJOB\tSTATUS\tCREATED\tUPDATED")
		for _, j := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.OrgID, j.JobID, j.Status,
				j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var leasesReleaseCmd = &cobra.Command{
	Use:   "release <org> <job>",
	Short: "Delete a job lease so the next tick can start",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := holderdb.HolderDBStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := lockmgr.NewTracker(store).Release(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("released %s/%s\n", args[0], args[1])
		return nil
	},
}
