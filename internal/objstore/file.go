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
	"io/fs"
	"os"
	"path/filepath"
)

// fileBackend keeps each bucket as a directory under base. It backs local
// runs and tests.
type fileBackend struct {
	base string
}

func (b *fileBackend) path(bucket, key string) string {
	return filepath.Join(b.base, bucket, filepath.FromSlash(key))
}

func (b *fileBackend) list(_ context.Context, bucket string) ([]string, error) {
	root := filepath.Join(b.base, bucket)
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return keys, err
}

func (b *fileBackend) get(_ context.Context, bucket, key string, limit int64) ([]byte, error) {
	f, err := os.Open(b.path(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readLimited(f, limit)
}

func (b *fileBackend) remove(_ context.Context, bucket, key string) error {
	if err := os.Remove(b.path(bucket, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// put writes a file; tests use it to seed buckets.
func (b *fileBackend) put(bucket, key string, data []byte) error {
	p := b.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
