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

package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func newTestClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RateLimit = 0
	return New("test", cfg, WithBackOff(fastBackOff))
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	var out map[string]string
	err := newTestClient(srv.URL).Do(context.Background(), http.MethodGet, "/thing", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Do(context.Background(), http.MethodGet, "/missing", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Do(context.Background(), http.MethodPost, "/x", map[string]int{"a": 1}, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, int32(DefaultConfig().MaxRetries+1), calls.Load())
}

func TestDo_SendsJSONBodyAndAuth(t *testing.T) {
	tests := []struct {
		name string
		auth Authorizer
		want func(t *testing.T, r *http.Request)
	}{
		{
			name: "basic",
			auth: Basic("partner-key", ""),
			want: func(t *testing.T, r *http.Request) {
				user, _, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "partner-key", user)
			},
		},
		{
			name: "bearer",
			auth: BearerToken(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})),
			want: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.want(t, r)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var in map[string][]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				assert.Equal(t, []string{"u1"}, in["userIds"])
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			err := newTestClient(srv.URL).Do(context.Background(), http.MethodPost, "/", map[string][]string{"userIds": {"u1"}}, tt.auth, nil)
			require.NoError(t, err)
		})
	}
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 503}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 429}).Temporary())
}
