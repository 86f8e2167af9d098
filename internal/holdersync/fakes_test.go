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
	"errors"
	"slices"
	"sync"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/extractor"
	"github.com/cardinalhq/credrunner/internal/objstore"
	"github.com/cardinalhq/credrunner/internal/partner"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[holderdb.HolderKey]holderdb.HolderCredential
	upsertErr error
	deleted   []holderdb.DeleteOlderThanParams
}

func newMemStore() *memStore {
	return &memStore{rows: map[holderdb.HolderKey]holderdb.HolderCredential{}}
}

func (m *memStore) UpsertHolderCredential(ctx context.Context, rec holderdb.HolderCredential) (holderdb.UpsertResult, error) {
	return m.UpsertHolderCredentialIf(ctx, rec, nil)
}

func (m *memStore) UpsertHolderCredentialIf(_ context.Context, rec holderdb.HolderCredential, overwrite func(holderdb.HolderCredential) bool) (holderdb.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, &holderdb.PersistenceError{Op: "insert", Err: m.upsertErr}
	}
	key := holderdb.HolderKey{OrgID: rec.OrgID, Email: rec.Email}
	existing, exists := m.rows[key]
	if exists && overwrite != nil && !overwrite(existing) {
		return holderdb.UpsertSkipped, nil
	}
	m.rows[key] = rec
	if exists {
		return holderdb.UpsertUpdated, nil
	}
	return holderdb.UpsertCreated, nil
}

func (m *memStore) HolderCredentialsDeleteOlderThan(_ context.Context, arg holderdb.DeleteOlderThanParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, arg)
	var n int64
	for k, rec := range m.rows {
		if k.OrgID == arg.OrgID && !rec.UpdatedAt.After(arg.Cutoff) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) get(orgID, email string) (holderdb.HolderCredential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[holderdb.HolderKey{OrgID: orgID, Email: email}]
	return rec, ok
}

// memFiles is an in-memory objstore.Client. A file whose body is nil is
// listed but fails to fetch with fetchErr.
type memFiles struct {
	mu        sync.Mutex
	files     map[string][]byte
	fetchErr  error
	deleteErr error
}

func (m *memFiles) ListFiles(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.files {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *memFiles) FetchFile(_ context.Context, _ string, fileID string) (objstore.Bundle, error) {
	m.mu.Lock()
	body, ok := m.files[fileID]
	m.mu.Unlock()
	if !ok {
		return nil, objstore.ErrNotFound
	}
	if body == nil {
		return nil, m.fetchErr
	}
	return objstore.DecodeBundle(body)
}

func (m *memFiles) DeleteFile(_ context.Context, _ string, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, fileID)
	return nil
}

func (m *memFiles) has(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[fileID]
	return ok
}

type stubExtractor map[string]*extractor.Response

func (s stubExtractor) Extract(_ context.Context, credential json.RawMessage) (*extractor.Response, error) {
	if r, ok := s[string(credential)]; ok {
		return r, nil
	}
	return nil, errors.New("extraction service unavailable")
}

type stubKeys map[string]string

func (s stubKeys) PartnerKey(_ context.Context, _, partnerID, _ string) (string, error) {
	if k, ok := s[partnerID]; ok {
		return k, nil
	}
	return "", errors.New("unable to fetch partner key")
}

type stubPartner struct {
	users    []partner.User
	statuses map[string]string
}

func (s *stubPartner) GetUsersList(_ context.Context, _ string) ([]partner.User, error) {
	return s.users, nil
}

func (s *stubPartner) GetUserStatus(_ context.Context, _, userID string) (string, error) {
	st, ok := s.statuses[userID]
	if !ok {
		return "", partner.ErrNoStatus
	}
	return st, nil
}
