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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/orgdir"
	"github.com/cardinalhq/credrunner/internal/partner"
)

func TestPartnerRecord(t *testing.T) {
	tests := []struct {
		fullName, first, last string
	}{
		{"Pat Q Public", "Pat Q", "Public"},
		{"Sam", "", "Sam"},
		{"", "", ""},
	}
	for _, tt := range tests {
		rec := partnerRecord("acme", "cleared4", "pat@example.com", tt.fullName, "vaccinated")
		assert.Equal(t, tt.first, rec.FirstName, tt.fullName)
		assert.Equal(t, tt.last, rec.LastName, tt.fullName)
		assert.Equal(t, "cleared4", rec.FileName)
		assert.Equal(t, "vaccinated", rec.VaccineStatus)
		assert.JSONEq(t, `{}`, string(rec.ConsentReceipt))
		assert.Equal(t, holderdb.SentStatusNo, rec.SentStatusTririga)
		assert.False(t, rec.DateOfVaccination.Valid)
	}
}

func TestPersistPartner(t *testing.T) {
	db := newMemStore()
	db.rows[holderdb.HolderKey{OrgID: "acme", Email: "owned@example.com"}] = holderdb.HolderCredential{
		OrgID: "acme", Email: "owned@example.com", FileName: "cleared4", VaccineStatus: "unvaccinated",
	}
	db.rows[holderdb.HolderKey{OrgID: "acme", Email: "uploaded@example.com"}] = holderdb.HolderCredential{
		OrgID: "acme", Email: "uploaded@example.com", FileName: "bundle-9.json", VaccineStatus: "valid",
	}
	db.rows[holderdb.HolderKey{OrgID: "acme", Email: "same@example.com"}] = holderdb.HolderCredential{
		OrgID: "acme", Email: "same@example.com", FileName: "cleared4", VaccineStatus: "vaccinated", FirstName: "Keep",
	}

	p := &stubPartner{
		users: []partner.User{
			{UserID: "New@Example.com", FullName: "New Person"},
			{UserID: "owned@example.com", FullName: "Owned Person"},
			{UserID: "uploaded@example.com", FullName: "Uploaded Person"},
			{UserID: "same@example.com", FullName: "Same Person"},
			{UserID: "ghost@example.com", FullName: "No Status"},
		},
		statuses: map[string]string{
			"New@Example.com":      "vaccinated",
			"owned@example.com":    "vaccinated",
			"uploaded@example.com": "unvaccinated",
			"same@example.com":     "vaccinated",
		},
	}
	s := New(Deps{
		DB:       db,
		Keys:     stubKeys{"cleared4": "a2V5"},
		Partners: p,
		Pool:     batch.NewPool("partner", batch.Config{Workers: 2, FailureThreshold: 1}),
	})

	run, err := s.PersistPartner(context.Background(), "acme", orgdir.Partner{ID: "cleared4", Key: "apiKey"})
	require.NoError(t, err)
	assert.Equal(t, 5, run.Users)
	assert.Equal(t, 1, run.Summary.Failures)
	assert.Equal(t, "finished processing user list of length 5", run.Message())

	rec, ok := db.get("acme", "new@example.com")
	require.True(t, ok, "email is lowercased")
	assert.Equal(t, "vaccinated", rec.VaccineStatus)
	assert.Equal(t, "New", rec.FirstName)

	rec, _ = db.get("acme", "owned@example.com")
	assert.Equal(t, "vaccinated", rec.VaccineStatus, "partner-owned row follows status")

	rec, _ = db.get("acme", "uploaded@example.com")
	assert.Equal(t, "valid", rec.VaccineStatus, "file-sourced row is left alone")

	rec, _ = db.get("acme", "same@example.com")
	assert.Equal(t, "Keep", rec.FirstName, "unchanged status is not rewritten")
}

// racingStore lands a file-ingest row for the same key just before each
// conditional write reaches the store.
type racingStore struct {
	*memStore
	fileRow holderdb.HolderCredential
}

func (r *racingStore) UpsertHolderCredentialIf(ctx context.Context, rec holderdb.HolderCredential, overwrite func(holderdb.HolderCredential) bool) (holderdb.UpsertResult, error) {
	if _, err := r.memStore.UpsertHolderCredential(ctx, r.fileRow); err != nil {
		return 0, err
	}
	return r.memStore.UpsertHolderCredentialIf(ctx, rec, overwrite)
}

func TestPersistPartner_IngestLandingFirstIsKept(t *testing.T) {
	db := &racingStore{
		memStore: newMemStore(),
		fileRow: holderdb.HolderCredential{
			OrgID: "acme", Email: "late@example.com", FileName: "bundle-3.json", VaccineStatus: "valid", FirstName: "Late",
		},
	}
	p := &stubPartner{
		users:    []partner.User{{UserID: "late@example.com", FullName: "Late Arrival"}},
		statuses: map[string]string{"late@example.com": "unvaccinated"},
	}
	s := New(Deps{DB: db, Keys: stubKeys{"cleared4": "a2V5"}, Partners: p})

	run, err := s.PersistPartner(context.Background(), "acme", orgdir.Partner{ID: "cleared4", Key: "apiKey"})
	require.NoError(t, err)
	assert.Equal(t, 0, run.Summary.Failures)

	rec, ok := db.get("acme", "late@example.com")
	require.True(t, ok)
	assert.Equal(t, "bundle-3.json", rec.FileName)
	assert.Equal(t, "valid", rec.VaccineStatus)
	assert.Equal(t, "Late", rec.FirstName)
}

func TestPersistPartner_KeyError(t *testing.T) {
	s := New(Deps{DB: newMemStore(), Keys: stubKeys{}, Partners: &stubPartner{}})
	_, err := s.PersistPartner(context.Background(), "acme", orgdir.Partner{ID: "cleared4", Key: "apiKey"})
	assert.ErrorContains(t, err, "partner key")
}

func TestCleanup(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	db := newMemStore()
	db.rows[holderdb.HolderKey{OrgID: "acme", Email: "old"}] = holderdb.HolderCredential{UpdatedAt: now.AddDate(0, 0, -31)}
	db.rows[holderdb.HolderKey{OrgID: "acme", Email: "fresh"}] = holderdb.HolderCredential{UpdatedAt: now.AddDate(0, 0, -2)}
	db.rows[holderdb.HolderKey{OrgID: "other", Email: "old"}] = holderdb.HolderCredential{UpdatedAt: now.AddDate(0, 0, -90)}

	s := New(Deps{DB: db, Now: func() time.Time { return now }})

	n, err := s.Cleanup(context.Background(), orgdir.Organization{ID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(-30*24*time.Hour), db.deleted[0].Cutoff)

	n, err = s.Cleanup(context.Background(), orgdir.Organization{ID: "acme", Config: orgdir.Config{Cleanup: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(-24*time.Hour), db.deleted[1].Cutoff)
}
