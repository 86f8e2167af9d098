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

// Package holdersync holds the per-organization pipelines that keep
// holder_credentials current: ingesting credential files, reconciling
// partner-reported status and sweeping aged rows.
package holdersync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/credentials"
	"github.com/cardinalhq/credrunner/internal/objstore"
	"github.com/cardinalhq/credrunner/internal/partner"
)

// HolderStore is the subset of holderdb.StoreFull the pipelines write to.
type HolderStore interface {
	UpsertHolderCredential(ctx context.Context, rec holderdb.HolderCredential) (holderdb.UpsertResult, error)
	UpsertHolderCredentialIf(ctx context.Context, rec holderdb.HolderCredential, overwrite func(existing holderdb.HolderCredential) bool) (holderdb.UpsertResult, error)
	HolderCredentialsDeleteOlderThan(ctx context.Context, arg holderdb.DeleteOlderThanParams) (int64, error)
}

type Classifier interface {
	Classify(ctx context.Context, bundle []json.RawMessage) credentials.Classification
}

// PartnerKeys resolves a partner's API key for an organization.
type PartnerKeys interface {
	PartnerKey(ctx context.Context, orgID, partnerID, keyName string) (string, error)
}

// PartnerStatus reads users and their status from a partner.
type PartnerStatus interface {
	GetUsersList(ctx context.Context, key string) ([]partner.User, error)
	GetUserStatus(ctx context.Context, key, userID string) (string, error)
}

// Deps wires a Syncer. Files and Classifier are needed by ProcessOrg,
// Keys and Partners by PersistPartner. Now defaults to time.Now.
type Deps struct {
	DB         HolderStore
	Files      objstore.Client
	Classifier Classifier
	Keys       PartnerKeys
	Partners   PartnerStatus
	Pool       *batch.Pool
	Now        func() time.Time
}

type Syncer struct {
	db         HolderStore
	files      objstore.Client
	classifier Classifier
	keys       PartnerKeys
	partners   PartnerStatus
	pool       *batch.Pool
	now        func() time.Time
}

func New(d Deps) *Syncer {
	s := &Syncer{
		db:         d.DB,
		files:      d.Files,
		classifier: d.Classifier,
		keys:       d.Keys,
		partners:   d.Partners,
		pool:       d.Pool,
		now:        d.Now,
	}
	if s.pool == nil {
		s.pool = batch.NewPool("holdersync", batch.DefaultConfig())
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

var (
	fileCounter    metric.Int64Counter
	partnerCounter metric.Int64Counter
	cleanupCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/internal/holdersync")

	var err error
	fileCounter, err = meter.Int64Counter(
		"credrunner.holdersync.files",
		metric.WithDescription("Credential files handled by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create holdersync.files counter: %w", err))
	}

	partnerCounter, err = meter.Int64Counter(
		"credrunner.holdersync.partner_users",
		metric.WithDescription("Partner users reconciled by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create holdersync.partner_users counter: %w", err))
	}

	cleanupCounter, err = meter.Int64Counter(
		"credrunner.holdersync.cleanup_deleted",
		metric.WithDescription("Holder credentials removed by the retention sweep"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create holdersync.cleanup_deleted counter: %w", err))
	}
}
