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

	"github.com/cardinalhq/credrunner/config"
	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/authtoken"
	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/credentials"
	"github.com/cardinalhq/credrunner/internal/desapi"
	"github.com/cardinalhq/credrunner/internal/extractor"
	"github.com/cardinalhq/credrunner/internal/holdersync"
	"github.com/cardinalhq/credrunner/internal/jobs"
	"github.com/cardinalhq/credrunner/internal/objstore"
	"github.com/cardinalhq/credrunner/internal/orgdir"
	"github.com/cardinalhq/credrunner/internal/partner"
	"github.com/cardinalhq/credrunner/lockmgr"
)

// app is the fully wired pipeline shared by the run and job commands.
type app struct {
	cfg    *config.Config
	store  *holderdb.Store
	tokens *authtoken.Cache
	dir    *orgdir.StoreDirectory
	runner *jobs.Runner
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ll := slog.Default()

	store, err := holderdb.HolderDBStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to holderdb: %w", err)
	}

	files, err := objstore.New(ctx, cfg.ObjStore)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	tokens := authtoken.NewCache(
		authtoken.PasswordGrant(cfg.Auth),
		cfg.Auth.RefreshLead,
		cfg.Auth.Timeout,
		authtoken.WithLogger(ll),
	)

	ex := extractor.New(cfg.Extractor, tokens)
	syncer := holdersync.New(holdersync.Deps{
		DB:         store,
		Files:      files,
		Classifier: credentials.NewClassifier(ex, cfg.VaccineSchemaIDs),
		Keys:       desapi.New(cfg.DES, tokens),
		Partners:   partner.New(cfg.Partner),
		Pool:       batch.NewPool("holdersync", cfg.Batch),
	})

	dir := orgdir.NewStoreDirectory(store, cfg.OrgCacheTTL)
	tracker := lockmgr.NewTracker(store,
		lockmgr.WithHeartbeatInterval(cfg.HeartbeatInterval),
		lockmgr.WithLogger(ll),
	)

	return &app{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		dir:    dir,
		runner: jobs.NewRunner(tracker, dir, syncer, tokens, cfg.Jobs.OrgConcurrency),
	}, nil
}

func (a *app) Close() {
	a.tokens.Close()
	a.dir.Stop()
	a.store.Close()
}
