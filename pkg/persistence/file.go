package persistence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FileBlobStore writes the blob to a single file. Writes go to a temporary
// sibling first and are renamed into place.
type FileBlobStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

var _ BlobStore = (*FileBlobStore)(nil)

func NewFileBlobStore(path string) (*FileBlobStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file blob store: empty path")
	}
	return &FileBlobStore{path: filepath.Clean(path)}, nil
}

func (f *FileBlobStore) Path() string {
	return f.path
}

func (f *FileBlobStore) Save(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("file blob store closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create directory for %s", f.path)
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "could not write %s", tmpPath)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return errors.Wrapf(err, "could not move %s into place", tmpPath)
	}
	return nil
}

func (f *FileBlobStore) Load(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("file blob store closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read %s", f.path)
	}
	if len(b) == 0 {
		return nil, nil
	}
	return b, nil
}

func (f *FileBlobStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
