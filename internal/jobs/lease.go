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

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/internal/idgen"
	"github.com/cardinalhq/credrunner/internal/logctx"
)

// Result is an orchestrator run's outcome. Status uses HTTP codes: 201 for
// a finished run, 409 when another run holds the lease and 500 for a
// failed run.
type Result struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == http.StatusCreated
}

// Leases is the subset of lockmgr.Tracker a run needs.
type Leases interface {
	CanStart(ctx context.Context, orgID, jobID string, staleMinutes int) (bool, error)
	Complete(ctx context.Context, orgID, jobID string) error
	Release(ctx context.Context, orgID, jobID string) error
	StartHeartbeat(ctx context.Context, orgID, jobID string) context.CancelFunc
}

type body func(ctx context.Context) (Result, error)

// leaseWriteTimeout bounds the final Complete or Release write.
const leaseWriteTimeout = 10 * time.Second

// withLease runs fn while holding the (jc.OrgID, jobID) lease. The lease is
// completed when fn succeeds and released when fn fails or panics.
func (r *Runner) withLease(ctx context.Context, jobID string, jc JobConfig, fn body) Result {
	ctx, ll := logctx.With(ctx,
		slog.String("txID", idgen.NewTxID()),
		slog.String("orgID", jc.OrgID),
		slog.String("jobID", jobID))

	ok, err := r.leases.CanStart(ctx, jc.OrgID, jobID, jc.StaleMins)
	if err != nil {
		ll.Error("Unable to check job status", slog.Any("error", err))
		countRun(ctx, jobID, "error")
		return Result{Status: http.StatusInternalServerError, Message: fmt.Sprintf("unable to check job status: %v", err)}
	}
	if !ok {
		ll.Info("Job is already running, waiting")
		countRun(ctx, jobID, "conflict")
		return Result{Status: http.StatusConflict, Message: fmt.Sprintf("%s-%s: job is already running", jc.OrgID, jobID)}
	}

	ll.Info("Starting job")
	start := time.Now()
	stop := r.leases.StartHeartbeat(ctx, jc.OrgID, jobID)
	res, err := runBody(ctx, fn)
	stop()

	// The run's ctx may already be cancelled; the lease row must still settle.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseWriteTimeout)
	defer cancel()
	if err == nil {
		err = r.leases.Complete(settleCtx, jc.OrgID, jobID)
	}
	elapsed := time.Since(start)
	runDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("job_id", jobID)))

	if err != nil {
		ll.Error("Unable to process data", slog.Any("error", err), slog.Duration("elapsed", elapsed))
		if rerr := r.leases.Release(settleCtx, jc.OrgID, jobID); rerr != nil {
			ll.Error("Unable to delete job", slog.Any("error", rerr))
		}
		countRun(ctx, jobID, "failed")
		return Result{Status: http.StatusInternalServerError, Message: fmt.Sprintf("unable to process data: %v", err)}
	}

	ll.Info("Finished job", slog.Duration("elapsed", elapsed), slog.String("message", res.Message))
	countRun(ctx, jobID, "done")
	res.Status = http.StatusCreated
	return res
}

func runBody(ctx context.Context, fn body) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx)
}

func countRun(ctx context.Context, jobID, outcome string) {
	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("outcome", outcome),
	))
}
