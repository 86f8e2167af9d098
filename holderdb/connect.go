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

package holderdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	holderdbmigrations "github.com/cardinalhq/credrunner/holderdb/migrations"
	"github.com/cardinalhq/credrunner/internal/dbopen"
)

// ConnectToHolderDB opens a pool from HOLDERDB_* and verifies the schema version.
func ConnectToHolderDB(ctx context.Context, opts ...dbopen.Options) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv("HOLDERDB")
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get HOLDERDB connection string: %w", err))
	}

	pool, err := dbopen.NewPool(ctx, connectionString, "holderdb")
	if err != nil {
		return nil, err
	}

	var o dbopen.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if err := holderdbmigrations.CheckVersion(ctx, pool, o.MigrationCheckOptions...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("HOLDERDB migration version check failed: %w", err)
	}

	return pool, nil
}

func HolderDBStore(ctx context.Context, opts ...dbopen.Options) (*Store, error) {
	pool, err := ConnectToHolderDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}
