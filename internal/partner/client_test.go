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

package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/credrunner/internal/apiclient"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := apiclient.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.MaxRetries = 0
	return New(cfg)
}

func TestGetUsersList(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "Basic cGFydG5lcjprZXk=", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"userId":"Pat@Example.com","fullName":"Pat Q Public"},{"userId":"sam@example.com","fullName":"Sam"}]`))
	})

	users, err := c.GetUsersList(context.Background(), "cGFydG5lcjprZXk=")
	require.NoError(t, err)
	assert.Equal(t, []User{
		{UserID: "Pat@Example.com", FullName: "Pat Q Public"},
		{UserID: "sam@example.com", FullName: "Sam"},
	}, users)
}

func TestGetUserStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/list_user_status", r.URL.Path)
		var in struct {
			UserIDs []string `json:"userIds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if len(in.UserIDs) == 1 && in.UserIDs[0] == "ghost@example.com" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		assert.Equal(t, []string{"Pat@Example.com"}, in.UserIDs)
		_, _ = w.Write([]byte(`[{"userId":"Pat@Example.com","vaxStatus":"fully-vaccinated"}]`))
	})

	status, err := c.GetUserStatus(context.Background(), "k", "Pat@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "fully-vaccinated", status)

	_, err = c.GetUserStatus(context.Background(), "k", "ghost@example.com")
	assert.ErrorIs(t, err, ErrNoStatus)
}

func TestGetUsersList_Unauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.GetUsersList(context.Background(), "bad")
	assert.True(t, apiclient.IsStatus(err, http.StatusUnauthorized))
}
