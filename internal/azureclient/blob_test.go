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

package azureclient

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredential struct{}

func (staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "t", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestGetBlob(t *testing.T) {
	m := NewManagerWithCredential(staticCredential{})

	_, err := m.GetBlob(context.Background(), BlobConfig{})
	assert.Error(t, err)

	a, err := m.GetBlob(context.Background(), BlobConfig{StorageAccount: "acmecreds"})
	require.NoError(t, err)
	assert.Equal(t, "https://acmecreds.blob.core.windows.net/", a.Client.URL())

	b, err := m.GetBlob(context.Background(), BlobConfig{StorageAccount: "acmecreds"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := m.GetBlob(context.Background(), BlobConfig{StorageAccount: "dev", Endpoint: "https://azurite:10000/dev/"})
	require.NoError(t, err)
	assert.Equal(t, "https://azurite:10000/dev/", c.Client.URL())
}
