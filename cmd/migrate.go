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

	"github.com/cardinalhq/credrunner/holderdb"
	holderdbmigrations "github.com/cardinalhq/credrunner/holderdb/migrations"
	"github.com/cardinalhq/credrunner/internal/dbopen"
)

func init() {
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Apply pending holderdb migrations",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	slog.Info("Running holderdb migrations")
	if err := migrateholderdb(); err != nil {
		return fmt.Errorf("failed to migrate holderdb: %w", err)
	}
	slog.Info("holderdb migrations completed successfully")
	return nil
}

func migrateholderdb() error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	pool, err := holderdb.ConnectToHolderDB(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		return err
	}
	defer pool.Close()
	return holderdbmigrations.RunMigrationsUp(ctx, pool)
}
