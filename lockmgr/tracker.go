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

// Package lockmgr tracks one lease per (organization, job) in the jobs table.
//
// A lease moves none -> start -> running -> done. A running lease whose
// updated_at is older than the caller's stale window is presumed abandoned and
// may be taken over. Failed runs delete the row so the next tick starts fresh.
package lockmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/logctx"
)

// LeaseDB is the subset of holderdb.StoreFull the tracker needs.
type LeaseDB interface {
	JobLeaseTx(ctx context.Context, key holderdb.JobKey, fn func(q holderdb.JobQuerier) error) error
	JobSetStatus(ctx context.Context, arg holderdb.JobStatusParams) (int64, error)
	JobHeartbeat(ctx context.Context, key holderdb.JobKey) (int64, error)
	JobDelete(ctx context.Context, key holderdb.JobKey) (int64, error)
}

type Tracker struct {
	db                LeaseDB
	heartbeatInterval time.Duration
	ll                *slog.Logger
}

var leaseCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/lockmgr")
	var err error
	leaseCounter, err = meter.Int64Counter(
		"credrunner.lease.decisions",
		metric.WithDescription("Lease acquisition attempts by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lease.decisions counter: %w", err))
	}
}

func NewTracker(db LeaseDB, opts ...Options) *Tracker {
	t := &Tracker{
		db:                db,
		heartbeatInterval: defaultHeartbeatInterval,
		ll:                slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(t)
	}
	return t
}

type decision int

const (
	decisionRefuse decision = iota
	decisionCreate
	decisionResume
	decisionRecoverStale
)

func (d decision) String() string {
	switch d {
	case decisionCreate:
		return "create"
	case decisionResume:
		return "resume"
	case decisionRecoverStale:
		return "recover_stale"
	default:
		return "refuse"
	}
}

// decide applies the lease state machine to the current row, nil meaning no row.
func decide(row *holderdb.JobLockedRow, staleAfter time.Duration) decision {
	switch {
	case row == nil:
		return decisionCreate
	case row.Status != holderdb.JobStatusRunning:
		return decisionResume
	case row.DBNow.Sub(row.UpdatedAt) > staleAfter:
		return decisionRecoverStale
	default:
		return decisionRefuse
	}
}

// CanStart reports whether a run of jobID for orgID may proceed, recording
// the transition in the same transaction as the read.
func (t *Tracker) CanStart(ctx context.Context, orgID, jobID string, staleMinutes int) (bool, error) {
	key := holderdb.JobKey{OrgID: orgID, JobID: jobID}
	staleAfter := time.Duration(staleMinutes) * time.Minute
	ll := logctx.FromContext(ctx).With(slog.String("orgID", orgID), slog.String("jobID", jobID))

	var d decision
	err := t.db.JobLeaseTx(ctx, key, func(q holderdb.JobQuerier) error {
		var current *holderdb.JobLockedRow
		row, err := q.JobGetForUpdate(ctx, key)
		switch {
		case holderdb.IsNotFound(err):
		case err != nil:
			return fmt.Errorf("read job: %w", err)
		default:
			current = &row
		}

		d = decide(current, staleAfter)
		switch d {
		case decisionCreate:
			return q.JobInsert(ctx, holderdb.JobStatusParams{OrgID: orgID, JobID: jobID, Status: holderdb.JobStatusStart})
		case decisionResume:
			_, err := q.JobSetStatus(ctx, holderdb.JobStatusParams{OrgID: orgID, JobID: jobID, Status: holderdb.JobStatusRunning})
			return err
		case decisionRecoverStale:
			ll.Warn("Job is stale, taking over",
				slog.Time("updatedAt", row.UpdatedAt),
				slog.Duration("age", row.DBNow.Sub(row.UpdatedAt)),
				slog.Int("staleMinutes", staleMinutes))
			_, err := q.JobSetStatus(ctx, holderdb.JobStatusParams{OrgID: orgID, JobID: jobID, Status: holderdb.JobStatusStart})
			return err
		}
		return nil
	})
	if err != nil {
		leaseCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("job_id", jobID), attribute.String("decision", "error")))
		return false, fmt.Errorf("acquire lease %s/%s: %w", orgID, jobID, err)
	}

	leaseCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("job_id", jobID), attribute.String("decision", d.String())))
	if d == decisionRefuse {
		ll.Info("Job already running")
		return false, nil
	}
	ll.Debug("Lease acquired", slog.String("decision", d.String()))
	return true, nil
}

// Complete marks the lease done.
func (t *Tracker) Complete(ctx context.Context, orgID, jobID string) error {
	n, err := t.db.JobSetStatus(ctx, holderdb.JobStatusParams{OrgID: orgID, JobID: jobID, Status: holderdb.JobStatusDone})
	if err != nil {
		return fmt.Errorf("complete lease %s/%s: %w", orgID, jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("complete lease %s/%s: job row is gone", orgID, jobID)
	}
	return nil
}

// Release deletes the lease so the next scheduled tick can start at once.
func (t *Tracker) Release(ctx context.Context, orgID, jobID string) error {
	if _, err := t.db.JobDelete(ctx, holderdb.JobKey{OrgID: orgID, JobID: jobID}); err != nil {
		return fmt.Errorf("release lease %s/%s: %w", orgID, jobID, err)
	}
	return nil
}

// StartHeartbeat keeps the lease fresh until the returned func is called.
func (t *Tracker) StartHeartbeat(ctx context.Context, orgID, jobID string) context.CancelFunc {
	key := holderdb.JobKey{OrgID: orgID, JobID: jobID}
	hb := newHeartbeater(func(ctx context.Context) error {
		n, err := t.db.JobHeartbeat(ctx, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no active lease for %s/%s", orgID, jobID)
		}
		return nil
	}, t.heartbeatInterval, t.ll.With(slog.String("orgID", orgID), slog.String("jobID", jobID)))
	return hb.start(ctx)
}
