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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory lock classes, the first argument of the two-key pg_advisory_xact_lock.
const (
	lockClassHolder int32 = 1001
	lockClassJob    int32 = 1002
)

// Querier lists the single-statement queries.
type Querier interface {
	HolderCredentialGet(ctx context.Context, key HolderKey) (HolderCredential, error)
	HolderCredentialInsert(ctx context.Context, rec HolderCredential) error
	HolderCredentialUpdate(ctx context.Context, rec HolderCredential) (int64, error)
	HolderCredentialsDeleteOlderThan(ctx context.Context, arg DeleteOlderThanParams) (int64, error)

	JobGetForUpdate(ctx context.Context, key JobKey) (JobLockedRow, error)
	JobInsert(ctx context.Context, arg JobStatusParams) error
	JobSetStatus(ctx context.Context, arg JobStatusParams) (int64, error)
	JobHeartbeat(ctx context.Context, key JobKey) (int64, error)
	JobDelete(ctx context.Context, key JobKey) (int64, error)
	JobList(ctx context.Context, orgID string) ([]Job, error)

	OrganizationGet(ctx context.Context, orgID string) (Organization, error)
	OrganizationList(ctx context.Context) ([]Organization, error)
	OrganizationUpsert(ctx context.Context, arg OrganizationUpsertParams) error
}

// StoreFull is Querier plus the transactional operations.
type StoreFull interface {
	Querier
	UpsertHolderCredential(ctx context.Context, rec HolderCredential) (UpsertResult, error)
	UpsertHolderCredentialIf(ctx context.Context, rec HolderCredential, overwrite func(existing HolderCredential) bool) (UpsertResult, error)
	JobLeaseTx(ctx context.Context, key JobKey, fn func(q JobQuerier) error) error
	Close()
}

var _ StoreFull = (*Store)(nil)

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

func (store *Store) Close() {
	if store.connPool != nil {
		store.connPool.Close()
	}
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx here, it may already be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}
	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = tx.Commit(commitCtx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	committed = true
	return nil
}

func (q *Queries) advisoryXactLock(ctx context.Context, class int32, key string) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, hashtext($2))`, class, key)
	return err
}
