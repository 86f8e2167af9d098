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
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/credrunner/internal/azureclient"
)

// azureBackend maps buckets to blob containers.
type azureBackend struct {
	client *azureclient.BlobClient
}

func azureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

func (b *azureBackend) list(ctx context.Context, bucket string) ([]string, error) {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.azureList",
		trace.WithAttributes(attribute.String("bucket", bucket)))
	defer span.End()

	var keys []string
	pager := b.client.Client.NewListBlobsFlatPager(bucket, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

func (b *azureBackend) get(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.azureGet",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	resp, err := b.client.Client.DownloadStream(ctx, bucket, key, nil)
	if err != nil {
		if azureNotFound(err) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read blob body: %w", err)
	}
	return data, nil
}

func (b *azureBackend) remove(ctx context.Context, bucket, key string) error {
	ctx, span := b.client.Tracer.Start(ctx, "objstore.azureDelete",
		trace.WithAttributes(attribute.String("bucket", bucket), attribute.String("key", key)))
	defer span.End()

	_, err := b.client.Client.DeleteBlob(ctx, bucket, key, nil)
	if err != nil && azureNotFound(err) {
		return ErrNotFound
	}
	return err
}
