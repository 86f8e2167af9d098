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

// Package jobs holds the scheduled orchestrators. Each run takes its lease,
// fans out over organizations, waits for every organization to finish and
// reports a Result.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/credrunner/internal/holdersync"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// Pipelines is the per-organization work the orchestrators drive.
type Pipelines interface {
	ProcessOrg(ctx context.Context, org orgdir.Organization) (holdersync.FileRun, error)
	PersistPartner(ctx context.Context, orgID string, p orgdir.Partner) (holdersync.PartnerRun, error)
	Cleanup(ctx context.Context, org orgdir.Organization) (int64, error)
}

// OrgReport is one organization's part of a run, carried as the Result payload.
type OrgReport struct {
	OrgID   string `json:"orgId"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Runner struct {
	leases      Leases
	dir         orgdir.Directory
	pipelines   Pipelines
	tokens      oauth2.TokenSource
	concurrency int
}

func NewRunner(leases Leases, dir orgdir.Directory, pipelines Pipelines, tokens oauth2.TokenSource, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{leases: leases, dir: dir, pipelines: pipelines, tokens: tokens, concurrency: concurrency}
}

var (
	runCounter  metric.Int64Counter
	runDuration metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/credrunner/internal/jobs")

	var err error
	runCounter, err = meter.Int64Counter(
		"credrunner.jobs.runs",
		metric.WithDescription("Orchestrator runs by job and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create jobs.runs counter: %w", err))
	}

	runDuration, err = meter.Float64Histogram(
		"credrunner.jobs.duration",
		metric.WithDescription("Orchestrator run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create jobs.duration histogram: %w", err))
	}
}

// Run dispatches to the orchestrator named by jobID.
func (r *Runner) Run(ctx context.Context, jobID string, jc JobConfig) Result {
	switch jobID {
	case JobProcess:
		return r.ProcessEnterpriseData(ctx, jc)
	case JobPersist:
		return r.PersistPartnerData(ctx, jc)
	case JobCleanup:
		return r.CleanupData(ctx, jc)
	}
	return Result{Status: http.StatusBadRequest, Message: fmt.Sprintf("unknown job %q", jobID)}
}

// ProcessEnterpriseData ingests credential files for every organization with
// processing enabled.
func (r *Runner) ProcessEnterpriseData(ctx context.Context, jc JobConfig) Result {
	return r.withLease(ctx, JobProcess, jc, func(ctx context.Context) (Result, error) {
		if err := r.checkToken(); err != nil {
			return Result{}, err
		}
		orgs, err := r.organizations(ctx, func(o orgdir.Organization) bool { return o.Config.Process })
		if err != nil {
			return Result{}, err
		}

		start := time.Now()
		var mu sync.Mutex
		var files, failures int
		reports := r.eachOrg(ctx, orgs, func(ctx context.Context, org orgdir.Organization) (string, error) {
			run, err := r.pipelines.ProcessOrg(ctx, org)
			if err != nil {
				return "", err
			}
			mu.Lock()
			files += run.Files
			failures += run.Summary.Failures
			mu.Unlock()
			return run.Message(), nil
		})

		msg := "No files found to process"
		if files > 0 {
			msg = fmt.Sprintf("finished processing %d files with %d failures in %d ms",
				files, failures, time.Since(start).Milliseconds())
		}
		return Result{Message: msg, Payload: reports}, nil
	})
}

// PersistPartnerData reconciles partner-reported status for every
// organization with partners. Partners of one organization run in turn.
func (r *Runner) PersistPartnerData(ctx context.Context, jc JobConfig) Result {
	return r.withLease(ctx, JobPersist, jc, func(ctx context.Context) (Result, error) {
		if err := r.checkToken(); err != nil {
			return Result{}, err
		}
		orgs, err := r.organizations(ctx, func(o orgdir.Organization) bool { return len(o.Config.Partners) > 0 })
		if err != nil {
			return Result{}, err
		}

		reports := r.eachOrg(ctx, orgs, func(ctx context.Context, org orgdir.Organization) (string, error) {
			var errs *multierror.Error
			users := 0
			for _, p := range org.Config.Partners {
				run, err := r.pipelines.PersistPartner(ctx, org.ID, p)
				if err != nil {
					errs = multierror.Append(errs, fmt.Errorf("partner %s: %w", p.ID, err))
					continue
				}
				users += run.Users
			}
			return fmt.Sprintf("finished processing %d partner users", users), errs.ErrorOrNil()
		})
		return Result{
			Message: fmt.Sprintf("finished persisting partner data for %d organizations", len(orgs)),
			Payload: reports,
		}, nil
	})
}

// CleanupData runs the retention sweep for every organization.
func (r *Runner) CleanupData(ctx context.Context, jc JobConfig) Result {
	return r.withLease(ctx, JobCleanup, jc, func(ctx context.Context) (Result, error) {
		if err := r.checkToken(); err != nil {
			return Result{}, err
		}
		orgs, err := r.organizations(ctx, nil)
		if err != nil {
			return Result{}, err
		}

		var mu sync.Mutex
		var total int64
		reports := r.eachOrg(ctx, orgs, func(ctx context.Context, org orgdir.Organization) (string, error) {
			n, err := r.pipelines.Cleanup(ctx, org)
			if err != nil {
				return "", err
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return fmt.Sprintf("%d credentials deleted older than %d days", n, org.Config.CleanupDays()), nil
		})
		return Result{
			Message: fmt.Sprintf("deleted %d credentials across %d organizations", total, len(orgs)),
			Payload: reports,
		}, nil
	})
}

// checkToken fails the run early when no service token can be obtained.
func (r *Runner) checkToken() error {
	if r.tokens == nil {
		return nil
	}
	if _, err := r.tokens.Token(); err != nil {
		return fmt.Errorf("unable to get service token: %w", err)
	}
	return nil
}

func (r *Runner) organizations(ctx context.Context, keep func(orgdir.Organization) bool) ([]orgdir.Organization, error) {
	all, err := r.dir.GetAllOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch all orgs: %w", err)
	}
	if keep == nil {
		return all, nil
	}
	var out []orgdir.Organization
	for _, o := range all {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// eachOrg runs fn for every organization, at most r.concurrency at a time,
// and returns once all have finished. A failing organization is logged and
// reported; it does not stop the others or fail the run.
func (r *Runner) eachOrg(ctx context.Context, orgs []orgdir.Organization, fn func(context.Context, orgdir.Organization) (string, error)) []OrgReport {
	reports := make([]OrgReport, len(orgs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			ctx, ll := logctx.With(ctx, slog.String("targetOrgID", org.ID))
			reports[i].OrgID = org.ID
			msg, err := safeOrg(ctx, org, fn)
			reports[i].Message = msg
			if err != nil {
				ll.Error("Organization run failed", slog.Any("error", err))
				reports[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func safeOrg(ctx context.Context, org orgdir.Organization, fn func(context.Context, orgdir.Organization) (string, error)) (msg string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, org)
}
