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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/orgdir"
	"github.com/cardinalhq/credrunner/internal/partner"
)

var emptyPayload = json.RawMessage(`{}`)

// PartnerRun summarizes one partner's user list for one organization.
type PartnerRun struct {
	OrgID     string
	PartnerID string
	Users     int
	Summary   batch.Summary
}

func (r PartnerRun) Message() string {
	return fmt.Sprintf("finished processing user list of length %d", r.Users)
}

// PersistPartner reconciles every user the partner reports into
// holder_credentials. A user's row is written when it does not exist yet,
// or when the partner owns it (file_name is the partner id) and the status
// changed. Rows from credential files are never overwritten here.
func (s *Syncer) PersistPartner(ctx context.Context, orgID string, p orgdir.Partner) (PartnerRun, error) {
	ctx, ll := logctx.With(ctx, slog.String("orgID", orgID), slog.String("partnerID", p.ID))
	run := PartnerRun{OrgID: orgID, PartnerID: p.ID}

	key, err := s.keys.PartnerKey(ctx, orgID, p.ID, p.Key)
	if err != nil {
		return run, err
	}
	users, err := s.partners.GetUsersList(ctx, key)
	if err != nil {
		return run, fmt.Errorf("unable to list users for partner %s: %w", p.ID, err)
	}
	run.Users = len(users)

	run.Summary = batch.Run(ctx, s.pool, users, func(ctx context.Context, u partner.User) error {
		return s.reconcileUser(ctx, orgID, p.ID, key, u)
	})
	ll.Info("Finished partner user list",
		slog.Int("users", run.Users),
		slog.Int("failures", run.Summary.Failures))
	return run, nil
}

func (s *Syncer) reconcileUser(ctx context.Context, orgID, partnerID, key string, u partner.User) error {
	status, err := s.partners.GetUserStatus(ctx, key, u.UserID)
	if err != nil {
		s.countUser(ctx, orgID, "error")
		return fmt.Errorf("unable to update status %s: %w", orgID, err)
	}
	email := strings.ToLower(u.UserID)

	rec := partnerRecord(orgID, partnerID, email, u.FullName, status)
	res, err := s.db.UpsertHolderCredentialIf(ctx, rec, func(existing holderdb.HolderCredential) bool {
		return existing.FileName == partnerID && existing.VaccineStatus != status
	})
	if err != nil {
		s.countUser(ctx, orgID, "error")
		return err
	}
	if res == holderdb.UpsertSkipped {
		logctx.FromContext(ctx).Debug("No changes to vaccination status")
		s.countUser(ctx, orgID, "unchanged")
		return nil
	}
	s.countUser(ctx, orgID, "written")
	return nil
}

func (s *Syncer) countUser(ctx context.Context, orgID, outcome string) {
	partnerCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("organization_id", orgID),
		attribute.String("outcome", outcome),
	))
}

// partnerRecord builds a status-only row. The last word of fullName is the
// last name and the rest is the first name.
func partnerRecord(orgID, partnerID, email, fullName, status string) holderdb.HolderCredential {
	words := strings.Split(fullName, " ")
	last := words[len(words)-1]
	first := strings.Join(words[:len(words)-1], " ")

	return holderdb.HolderCredential{
		Email:                  email,
		OrgID:                  orgID,
		FileName:               partnerID,
		FirstName:              first,
		LastName:               last,
		VaccineStatus:          status,
		ConsentReceipt:         emptyPayload,
		IDCredentials:          emptyPayload,
		VaccinationCredentials: emptyPayload,
		SentStatusChs:          holderdb.SentStatusNo,
		SentStatusTririga:      holderdb.SentStatusNo,
	}
}
