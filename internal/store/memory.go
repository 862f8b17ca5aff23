package store

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"cdnsync/internal/deploy"
	"cdnsync/internal/etag"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It stores all objects in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	name    string
	objects map[string][]byte // key -> content
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		objects: make(map[string][]byte),
	}
}

// List returns all objects under prefix, sorted by key.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]deploy.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []deploy.FileRecord
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			records = append(records, deploy.FileRecord{Filename: key, Hash: etag.Sum(data)})
		}
	}
	slices.SortFunc(records, func(a, b deploy.FileRecord) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return records, nil
}

// Fetch returns the object stored under key.
func (m *MemoryStore) Fetch(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, deploy.NewOpError("fetch", key, deploy.ErrNotFound)
	}
	return slices.Clone(data), nil
}

// Upload stores the content read from r under key.
func (m *MemoryStore) Upload(_ context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("failed to read content: %w", err))
	}

	if int64(len(data)) != size {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	return etag.Sum(data), nil
}

// BatchDelete removes keys; missing keys are ignored.
func (m *MemoryStore) BatchDelete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(context.Context) error {
	return nil
}

// Put stores data under key directly. Intended for tests.
func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = slices.Clone(data)
}

// Has reports whether key exists.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Keys returns every stored key in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Compile-time check that MemoryStore implements deploy.Store interface
var _ deploy.Store = (*MemoryStore)(nil)
