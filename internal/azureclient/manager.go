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

// Package azureclient builds Azure Blob Storage clients from the default
// Azure credential chain, one per storage account.
package azureclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Manager struct {
	cred   azcore.TokenCredential
	tracer trace.Tracer

	sync.Mutex
	blobClients map[string]*BlobClient
}

// NewManager loads credentials from the environment, workload identity or
// managed identity, in the order azidentity tries them.
func NewManager(_ context.Context) (*Manager, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	return NewManagerWithCredential(cred), nil
}

func NewManagerWithCredential(cred azcore.TokenCredential) *Manager {
	return &Manager{
		cred:        cred,
		tracer:      otel.Tracer("github.com/cardinalhq/credrunner/internal/azureclient"),
		blobClients: make(map[string]*BlobClient),
	}
}
