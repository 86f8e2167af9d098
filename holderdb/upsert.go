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
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type UpsertResult int

const (
	UpsertCreated UpsertResult = iota + 1
	UpsertUpdated
	UpsertSkipped
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertCreated:
		return "created"
	case UpsertUpdated:
		return "updated"
	case UpsertSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

var upsertCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/holderdb")
	var err error
	upsertCounter, err = meter.Int64Counter(
		"credrunner.holderdb.upserts",
		metric.WithDescription("Holder credential upserts by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upserts counter: %w", err))
	}
}

// UpsertHolderCredential creates or fully overwrites the row keyed by
// (rec.OrgID, rec.Email). The existence check and the write run in one
// transaction holding an advisory lock on the key, so concurrent upserts of
// the same key serialize instead of racing on insert.
func (store *Store) UpsertHolderCredential(ctx context.Context, rec HolderCredential) (UpsertResult, error) {
	return store.UpsertHolderCredentialIf(ctx, rec, nil)
}

// UpsertHolderCredentialIf is UpsertHolderCredential gated on the current
// row: when one exists and overwrite reports false for it, nothing is written
// and the result is UpsertSkipped. overwrite runs under the key's lock, so
// the row it sees is the row that gets replaced. A nil overwrite always
// replaces.
func (store *Store) UpsertHolderCredentialIf(ctx context.Context, rec HolderCredential, overwrite func(existing HolderCredential) bool) (UpsertResult, error) {
	var result UpsertResult
	key := rec.OrgID + "/" + rec.Email

	err := store.execTx(ctx, func(s *Store) error {
		if err := s.advisoryXactLock(ctx, lockClassHolder, key); err != nil {
			return persistErr("lock", err)
		}

		existing, err := s.HolderCredentialGet(ctx, HolderKey{OrgID: rec.OrgID, Email: rec.Email})
		switch {
		case IsNotFound(err):
			if rec.HolderCredentialsID == uuid.Nil {
				rec.HolderCredentialsID = uuid.New()
			}
			if err := s.HolderCredentialInsert(ctx, rec); err != nil {
				return persistErr("insert", err)
			}
			result = UpsertCreated
			return nil
		case err != nil:
			return persistErr("select", err)
		}
		if overwrite != nil && !overwrite(existing) {
			result = UpsertSkipped
			return nil
		}

		rec.HolderCredentialsID = existing.HolderCredentialsID
		n, err := s.HolderCredentialUpdate(ctx, rec)
		if err != nil {
			return persistErr("update", err)
		}
		if n != 1 {
			return persistErr("update", fmt.Errorf("expected 1 row updated, got %d", n))
		}
		result = UpsertUpdated
		return nil
	})
	if err != nil {
		return 0, persistErr("transaction", err)
	}

	upsertCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("organization_id", rec.OrgID),
		attribute.String("result", result.String()),
	))
	return result, nil
}
