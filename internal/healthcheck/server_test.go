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

package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewServer_DefaultPort(t *testing.T) {
	assert.Equal(t, 8090, NewServer(Config{}).port)
	assert.Equal(t, 9000, NewServer(Config{Port: 9000}).port)
}

func probe(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestProbes(t *testing.T) {
	s := NewServer(Config{})
	h := s.Handler()

	code, resp := probe(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Healthy)
	code, _ = probe(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code, "starting is alive")

	s.SetStatus(StatusHealthy)
	code, _ = probe(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	code, _ = probe(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	s.SetReadyCondition("scheduler", false)
	code, _ = probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	s.SetReadyCondition("scheduler", true)
	assert.True(t, s.IsReady())

	s.SetStatus(StatusUnhealthy)
	code, _ = probe(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, s.IsReady())
}

func TestRuns(t *testing.T) {
	s := NewServer(Config{})
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.RecordRun(Run{JobID: "process", Status: 201, Message: "first", FinishedAt: at})
	s.RecordRun(Run{JobID: "cleanup", Status: 409, Message: "busy", FinishedAt: at})
	s.RecordRun(Run{JobID: "process", Status: 500, Message: "second", FinishedAt: at.Add(time.Minute)})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "cleanup", runs[0].JobID)
	assert.Equal(t, "process", runs[1].JobID)
	assert.Equal(t, "second", runs[1].Message)
	assert.Equal(t, 500, runs[1].Status)
}
