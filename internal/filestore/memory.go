package filestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// MemoryStorage keeps uploads in process memory. Used in tests and local
// development where no bucket is available.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	createdAt   time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) Store(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	handle := fmt.Sprintf("mem://%s/%s-%s", userID, uuid.New().String(), fileName)

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[handle] = memoryObject{
		data:        buf,
		contentType: contentType,
		createdAt:   time.Now().UTC(),
	}
	return handle, nil
}

func (m *MemoryStorage) Read(ctx context.Context, handle string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[handle]
	if !ok {
		return nil, fmt.Errorf("Read: %s: %w", handle, domain.ErrStorage)
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, handle)
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, handle string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[handle]
	return ok, nil
}

func (m *MemoryStorage) GetMetadata(ctx context.Context, handle string) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[handle]
	if !ok {
		return nil, fmt.Errorf("GetMetadata: %s: %w", handle, domain.ErrStorage)
	}
	return &Metadata{
		Handle:      handle,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		CreatedAt:   obj.createdAt,
	}, nil
}
