// Package blobstore provides object storage over a local directory tree.
// Objects live at root/<bucket>/<key>; buckets are plain directories.
package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	perr "histshard/internal/platform/errors"
)

// FS reads and writes objects under a root directory
type FS struct {
	root string
}

// NewFS builds a store rooted at dir; the root is created eagerly
func NewFS(dir string) *FS {
	_ = os.MkdirAll(dir, 0o755)
	return &FS{root: dir}
}

// Path returns the absolute path an object would occupy
func (s *FS) Path(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

// Get opens an object for reading
func (s *FS) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.NotFoundf("object %s/%s not found", bucket, key)
		}
		return nil, perr.Storagef("open %s/%s: %v", bucket, key, err)
	}
	return f, nil
}

// Put writes an object whole. The first attempt assumes the parent
// directory exists; on a missing-parent failure the parents are created
// and the write is retried exactly once. MkdirAll tolerates concurrent
// writers creating the same directories. Any other failure is returned
// as is.
func (s *FS) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(bucket, key)

	err := writeAtomic(path, data)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return perr.Storagef("write %s/%s: %v", bucket, key, err)
	}

	if merr := os.MkdirAll(filepath.Dir(path), 0o755); merr != nil {
		return perr.Storagef("mkdir for %s/%s: %v", bucket, key, merr)
	}
	if err := writeAtomic(path, data); err != nil {
		return perr.Storagef("write %s/%s after mkdir: %v", bucket, key, err)
	}
	return nil
}

// writeAtomic stages bytes in a sidecar file and renames into place
func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
