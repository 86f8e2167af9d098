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

package objstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileStore(t *testing.T, limit int64) (*store, *fileBackend) {
	t.Helper()
	be := &fileBackend{base: t.TempDir()}
	return newStore(Config{Provider: "file", BucketSuffix: "credentials", MaxFileBytes: limit}, be), be
}

func TestBucket(t *testing.T) {
	s := newStore(Config{BucketSuffix: "credentials"}, nil)
	assert.Equal(t, "acme-credentials", s.Bucket("acme"))
	assert.Equal(t, "s3", s.provider)

	s = newStore(Config{}, nil)
	assert.Equal(t, "acme", s.Bucket("acme"))
}

func TestFileStore_ListSorted(t *testing.T) {
	s, be := fileStore(t, 0)
	for _, k := range []string{"c.json", "a.json", "nested/b.json"} {
		require.NoError(t, be.put("acme-credentials", k, []byte(`[]`)))
	}
	require.NoError(t, be.put("other-credentials", "x.json", []byte(`[]`)))

	keys, err := s.ListFiles(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "c.json", "nested/b.json"}, keys)
}

func TestFileStore_ListMissingBucket(t *testing.T) {
	s, _ := fileStore(t, 0)
	keys, err := s.ListFiles(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_Fetch(t *testing.T) {
	s, be := fileStore(t, 64)
	ctx := context.Background()
	require.NoError(t, be.put("acme-credentials", "ok.json", []byte(`[{"consentType":"x"}, "shc:/1"]`)))
	require.NoError(t, be.put("acme-credentials", "obj.json", []byte(`{"consentType":"x"}`)))
	require.NoError(t, be.put("acme-credentials", "null.json", []byte(`null`)))
	require.NoError(t, be.put("acme-credentials", "junk.json", []byte(`not json`)))
	require.NoError(t, be.put("acme-credentials", "big.json", []byte(`["`+string(make([]byte, 100))+`"]`)))

	b, err := s.FetchFile(ctx, "acme", "ok.json")
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.JSONEq(t, `{"consentType":"x"}`, string(b[0]))
	assert.Equal(t, `"shc:/1"`, string(b[1]))

	for _, k := range []string{"obj.json", "null.json", "junk.json", "big.json"} {
		_, err := s.FetchFile(ctx, "acme", k)
		assert.ErrorIs(t, err, ErrNotBundle, k)
	}

	_, err = s.FetchFile(ctx, "acme", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	s, be := fileStore(t, 0)
	ctx := context.Background()
	require.NoError(t, be.put("acme-credentials", "a.json", []byte(`[]`)))

	require.NoError(t, s.DeleteFile(ctx, "acme", "a.json"))
	require.NoError(t, s.DeleteFile(ctx, "acme", "a.json"))

	keys, err := s.ListFiles(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

type failingBackend struct{ err error }

func (f failingBackend) list(context.Context, string) ([]string, error) { return nil, f.err }
func (f failingBackend) get(context.Context, string, string, int64) ([]byte, error) {
	return nil, f.err
}
func (f failingBackend) remove(context.Context, string, string) error { return f.err }

func TestStore_BackendErrorsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	s := newStore(Config{Provider: "s3", BucketSuffix: "credentials"}, failingBackend{err: boom})
	ctx := context.Background()

	_, err := s.ListFiles(ctx, "acme")
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "acme-credentials")

	_, err = s.FetchFile(ctx, "acme", "f")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = s.DeleteFile(ctx, "acme", "f")
	assert.ErrorIs(t, err, boom)
}

func TestDecodeBundle(t *testing.T) {
	b, err := DecodeBundle([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = DecodeBundle([]byte(`"x"`))
	assert.ErrorIs(t, err, ErrNotBundle)
}

func TestNew_FileRequiresRoot(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "file"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "gcs"})
	assert.ErrorContains(t, err, "unsupported")

	c, err := New(context.Background(), Config{Provider: "file", FileRoot: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
