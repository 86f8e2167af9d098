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

package holdersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/credentials"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/objstore"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// Outcome is what happened to one source file.
type Outcome string

const (
	// OutcomeStored: the record was written and the source deleted.
	OutcomeStored Outcome = "stored"
	// OutcomeRejected: the source can never produce a record and was deleted.
	OutcomeRejected Outcome = "rejected"
	// OutcomeKept: the source was left in place for a later run.
	OutcomeKept Outcome = "kept"
)

// FileError reports a file that did not produce a stored record.
type FileError struct {
	FileID  string
	Outcome Outcome
	Err     error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s %s: %v", e.FileID, e.Outcome, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// FileRun summarizes one organization's file batch.
type FileRun struct {
	OrgID   string
	Files   int
	Summary batch.Summary
}

func (r FileRun) Message() string {
	if r.Files == 0 {
		return "No files found to process"
	}
	return fmt.Sprintf("finished processing %d files with %d failures in %d ms",
		r.Files, r.Summary.Failures, r.Summary.Elapsed.Milliseconds())
}

// ProcessOrg ingests every file in the organization's bucket. Individual file
// failures are counted in the summary; only a listing failure is returned.
func (s *Syncer) ProcessOrg(ctx context.Context, org orgdir.Organization) (FileRun, error) {
	ctx, ll := logctx.With(ctx, slog.String("orgID", org.ID))
	run := FileRun{OrgID: org.ID}

	files, err := s.files.ListFiles(ctx, org.ID)
	if err != nil {
		return run, fmt.Errorf("unable to list files for %s: %w", org.ID, err)
	}
	run.Files = len(files)
	if len(files) == 0 {
		ll.Info("No files to process")
		return run, nil
	}

	ll.Info("Started processing files", slog.Int("files", len(files)))
	run.Summary = batch.Run(ctx, s.pool, files, func(ctx context.Context, fileID string) error {
		return s.processFile(ctx, org, fileID)
	})
	ll.Info("Finished processing files",
		slog.Int("files", run.Files),
		slog.Int("failures", run.Summary.Failures),
		slog.Duration("elapsed", run.Summary.Elapsed))
	return run, nil
}

func (s *Syncer) processFile(ctx context.Context, org orgdir.Organization, fileID string) error {
	ctx, ll := logctx.With(ctx, slog.String("fileName", fileID))
	ll.Debug("Processing file")

	outcome, err := s.ingest(ctx, org, fileID)
	fileCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("organization_id", org.ID),
		attribute.String("outcome", string(outcome)),
	))
	if err != nil {
		return &FileError{FileID: fileID, Outcome: outcome, Err: err}
	}
	return nil
}

// ingest runs one file through classify, assemble and upsert, then decides
// whether the source goes.
func (s *Syncer) ingest(ctx context.Context, org orgdir.Organization, fileID string) (Outcome, error) {
	bundle, err := s.files.FetchFile(ctx, org.ID, fileID)
	switch {
	case errors.Is(err, objstore.ErrNotBundle):
		return s.reject(ctx, org.ID, fileID, err)
	case err != nil:
		return OutcomeKept, fmt.Errorf("unable to get file: %w", err)
	}

	cl := s.classifier.Classify(ctx, bundle)
	if cl.Set == nil {
		if !cl.ExtractOK {
			return OutcomeKept, fmt.Errorf("unable to extract credentials: %w", cl.Reason)
		}
		return s.reject(ctx, org.ID, fileID, cl.Reason)
	}

	rec, err := credentials.Assemble(ctx, cl.Set, org.ID, org.Config, fileID)
	if err != nil {
		return OutcomeKept, fmt.Errorf("unable to assemble holder credentials: %w", err)
	}
	res, err := s.db.UpsertHolderCredential(ctx, rec)
	if err != nil {
		return OutcomeKept, fmt.Errorf("unable to add holder credentials: %w", err)
	}
	logctx.FromContext(ctx).Debug("Holder credentials saved", slog.String("result", res.String()))

	if err := s.files.DeleteFile(ctx, org.ID, fileID); err != nil {
		return OutcomeKept, fmt.Errorf("unable to delete file: %w", err)
	}
	return OutcomeStored, nil
}

func (s *Syncer) reject(ctx context.Context, orgID, fileID string, reason error) (Outcome, error) {
	logctx.FromContext(ctx).Warn("Deleting unprocessable file", slog.Any("reason", reason))
	if err := s.files.DeleteFile(ctx, orgID, fileID); err != nil {
		return OutcomeKept, multierror.Append(reason, fmt.Errorf("unable to delete file: %w", err))
	}
	return OutcomeRejected, reason
}
