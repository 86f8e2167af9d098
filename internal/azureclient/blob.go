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
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel/trace"
)

type BlobClient struct {
	Client *azblob.Client
	Tracer trace.Tracer
}

type BlobConfig struct {
	StorageAccount string `mapstructure:"storageAccount"`
	// Endpoint defaults to https://<account>.blob.core.windows.net/.
	Endpoint string `mapstructure:"endpoint"`
}

func (c BlobConfig) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}

// GetBlob returns the cached client for bc.StorageAccount, creating it on
// first use.
func (m *Manager) GetBlob(_ context.Context, bc BlobConfig) (*BlobClient, error) {
	if bc.StorageAccount == "" {
		return nil, errors.New("storage account is required")
	}

	m.Lock()
	defer m.Unlock()
	if client, ok := m.blobClients[bc.StorageAccount]; ok {
		return client, nil
	}
	c, err := azblob.NewClient(bc.endpoint(), m.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	client := &BlobClient{Client: c, Tracer: m.tracer}
	m.blobClients[bc.StorageAccount] = client
	return client, nil
}
