// Package persistence provides the byte-blob backends a conversation store
// writes its serialized state to.
package persistence

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// BlobStore saves and loads one opaque state blob. Load returns nil, nil when
// nothing was saved yet.
type BlobStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

// MemoryBlobStore keeps the blob in process memory.
type MemoryBlobStore struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

var _ BlobStore = (*MemoryBlobStore)(nil)

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{}
}

func (m *MemoryBlobStore) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("memory blob store closed")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobStore) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory blob store closed")
	}
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBlobStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
