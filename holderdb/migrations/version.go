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

package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/credrunner/migrations"
)

// LatestVersion returns the highest version among the embedded up migrations.
func LatestVersion() (uint, error) {
	return latestVersion(migrationFiles)
}

func latestVersion(files fs.ReadDirFS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		maxVersion = max(maxVersion, uint(version))
	}
	if maxVersion == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return maxVersion, nil
}

func currentVersion(ctx context.Context, pool *pgxpool.Pool) (uint, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := pool.QueryRow(ctx, "SELECT version, dirty FROM "+migrationsTable+" LIMIT 1").Scan(&version, &dirty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint(version), dirty, nil
}

// CheckVersion verifies that holderdb is migrated to the version this binary
// embeds. Defaults come from HOLDERDB_MIGRATION_CHECK_* and may be overridden.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, opts ...migrations.CheckOption) error {
	options := migrations.Apply(migrations.DefaultCheckOptions("HOLDERDB"), opts...)
	if options.Mode == migrations.CheckModeSkip {
		slog.Debug("holderdb migration version check disabled")
		return nil
	}

	expected, err := LatestVersion()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(options.Timeout)
	ticker := time.NewTicker(options.RetryInterval)
	defer ticker.Stop()

	for {
		current, dirty, err := currentVersion(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to get current holderdb migration version: %w", err)
		}
		if dirty && !options.AllowDirty {
			return errors.New("holderdb migration is in dirty state, please fix before proceeding")
		}

		switch {
		case current == expected:
			return nil
		case current > expected:
			return fmt.Errorf("holderdb version %d is newer than expected version %d", current, expected)
		case options.Mode == migrations.CheckModeWarn:
			slog.Warn("holderdb migration version mismatch, continuing",
				slog.Uint64("current", uint64(current)),
				slog.Uint64("expected", uint64(expected)))
			return nil
		case time.Now().After(deadline):
			return fmt.Errorf("timeout waiting for holderdb migrations: current version %d, expected %d", current, expected)
		}

		slog.Info("Waiting for holderdb migrations",
			slog.Uint64("current", uint64(current)),
			slog.Uint64("expected", uint64(expected)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
