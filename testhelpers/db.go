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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	holderdbmigrations "github.com/cardinalhq/credrunner/holderdb/migrations"
)

// SetupTestHolderDB creates a clean holderdb with migrations applied.
// With HOLDERDB_HOST set it creates a throwaway database on that server;
// otherwise it starts a postgres container. Cleanup is registered with t.
func SetupTestHolderDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	var connStr string
	if os.Getenv("HOLDERDB_HOST") != "" {
		connStr = createServerDatabase(t)
	} else {
		connStr = startContainer(t)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test holderdb: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := holderdbmigrations.RunMigrationsUp(ctx, pool); err != nil {
		t.Fatalf("Failed to run holderdb migrations: %v", err)
	}
	return pool
}

func startContainer(t *testing.T) string {
	t.Helper()

	p := postgres.Preset(
		postgres.WithUser("credrunner", "credrunner"),
		postgres.WithDatabase("holderdb"),
		postgres.WithVersion("16"),
	)
	c, err := gnomock.Start(p, gnomock.WithTimeout(2*time.Minute))
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := gnomock.Stop(c); err != nil {
			slog.Error("Failed to stop postgres container", slog.Any("error", err))
		}
	})
	return fmt.Sprintf("postgres://credrunner:credrunner@%s/holderdb?sslmode=disable", c.DefaultAddress())
}

func createServerDatabase(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_holderdb_%d_%d", time.Now().Unix(), rand.Intn(10000))

	host := getEnvOrDefault("HOLDERDB_HOST", "localhost")
	port := getEnvOrDefault("HOLDERDB_PORT", "5432")
	user := getEnvOrDefault("HOLDERDB_USER", os.Getenv("USER"))
	baseDB := getEnvOrDefault("HOLDERDB_DBNAME", "testing_holderdb")
	password := os.Getenv("HOLDERDB_PASSWORD")

	connStr := func(db string) string {
		if password != "" {
			return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, db)
		}
		return fmt.Sprintf("postgresql://%s@%s:%s/%s", user, host, port, db)
	}

	basePool, err := pgxpool.New(ctx, connStr(baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}
	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	// Registered before the pool cleanup, so it runs after the pool closes.
	t.Cleanup(func() {
		defer basePool.Close()
		if _, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
	})
	return connStr(dbName)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
