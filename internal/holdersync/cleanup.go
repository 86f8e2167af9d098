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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// Cleanup deletes the organization's holder rows not updated within its
// retention window and returns how many went.
func (s *Syncer) Cleanup(ctx context.Context, org orgdir.Organization) (int64, error) {
	days := org.Config.CleanupDays()
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	n, err := s.db.HolderCredentialsDeleteOlderThan(ctx, holderdb.DeleteOlderThanParams{
		OrgID:  org.ID,
		Cutoff: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("unable to delete credentials for %s: %w", org.ID, err)
	}
	cleanupCounter.Add(ctx, n, metric.WithAttributes(attribute.String("organization_id", org.ID)))
	logctx.FromContext(ctx).Debug("Deleted aged credentials",
		slog.String("orgID", org.ID),
		slog.Int("days", days),
		slog.Int64("deleted", n))
	return n, nil
}
