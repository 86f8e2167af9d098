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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/credrunner/cmd/initialize"
	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

func init() {
	orgsCmd.AddCommand(orgsListCmd, orgsGetCmd, orgsPutCmd)
	rootCmd.AddCommand(orgsCmd)
}

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Inspect and load organization configuration",
}

var orgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organizations and what the jobs do for them",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := holderdb.HolderDBStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.OrganizationList(ctx)
		if err != nil {
			return fmt.Errorf("failed to list organizations: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORG\tPROCESS\tPARTNERS\tMAPPERS\tCLEANUP DAYS")
		for _, row := range rows {
			cfg, err := orgdir.ParseConfig(row.Config)
			if err != nil {
				fmt.Fprintf(w, "%s\tinvalid config: %v\t\t\t\n", row.OrgID, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\n", row.OrgID, cfg.Process, len(cfg.Partners), len(cfg.Mappers), cfg.CleanupDays())
		}
		return w.Flush()
	},
}

var orgsGetCmd = &cobra.Command{
	Use:   "get <org>",
	Short: "Show one organization's parsed configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := holderdb.HolderDBStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		dir := orgdir.NewStoreDirectory(store, time.Minute)
		defer dir.Stop()
		return printOrganization(ctx, os.Stdout, dir, args[0])
	},
}

// printOrganization writes orgID's configuration as it resolves for the jobs.
func printOrganization(ctx context.Context, w io.Writer, dir orgdir.Directory, orgID string) error {
	org, err := dir.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		OrgID       string        `json:"orgId"`
		CleanupDays int           `json:"cleanupDays"`
		Config      orgdir.Config `json:"config"`
	}{org.ID, org.Config.CleanupDays(), org.Config})
}

var orgsPutCmd = &cobra.Command{
	Use:   "put <file|env:VAR>",
	Short: "Create or replace organizations from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := holderdb.HolderDBStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := initialize.ImportOrganizations(ctx, args[0], store, initialize.OSFileReader{})
		if err != nil {
			return err
		}
		fmt.Printf("imported %d organizations\n", len(ids))
		return nil
	},
}
