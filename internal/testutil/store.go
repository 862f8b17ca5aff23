package testutil

import (
	"context"
	"io"
	"slices"
	"sync"

	"cdnsync/internal/deploy"
	"cdnsync/internal/store"
)

// NewTestStore creates a new in-memory store for testing.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore("test-store")
}

// FaultyStore wraps a Store, records the calls made through it and fails
// the ones configured to fail.
type FaultyStore struct {
	deploy.Store

	mu      sync.Mutex
	uploads []string
	deletes [][]string

	// UploadErr fails uploads of the given keys.
	UploadErr map[string]error
	// DeleteErr fails every BatchDelete.
	DeleteErr error
	// RemoteHash overrides the hash returned for uploads of the given keys.
	RemoteHash map[string]string
}

func NewFaultyStore(inner deploy.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

func (s *FaultyStore) Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	s.mu.Lock()
	s.uploads = append(s.uploads, key)
	err := s.UploadErr[key]
	override, overridden := s.RemoteHash[key]
	s.mu.Unlock()

	if err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}
	hash, err := s.Store.Upload(ctx, key, r, size)
	if err == nil && overridden {
		hash = override
	}
	return hash, err
}

func (s *FaultyStore) BatchDelete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, slices.Clone(keys))
	err := s.DeleteErr
	s.mu.Unlock()

	if err != nil {
		return deploy.NewOpError("delete", "", err)
	}
	return s.Store.BatchDelete(ctx, keys)
}

// Uploads returns the uploaded keys, sorted.
func (s *FaultyStore) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := slices.Clone(s.uploads)
	slices.Sort(keys)
	return keys
}

// Deletes returns the key batches passed to BatchDelete, in call order.
func (s *FaultyStore) Deletes() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deletes)
}

var _ deploy.Store = (*FaultyStore)(nil)

// RecordingCDN records refresh and prefetch batches.
type RecordingCDN struct {
	mu         sync.Mutex
	refreshes  [][]string
	prefetches [][]string

	// Err fails every call after recording it.
	Err error
}

func NewRecordingCDN() *RecordingCDN {
	return &RecordingCDN{}
}

func (c *RecordingCDN) Refresh(_ context.Context, urls []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes = append(c.refreshes, slices.Clone(urls))
	return c.Err
}

func (c *RecordingCDN) Prefetch(_ context.Context, urls []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetches = append(c.prefetches, slices.Clone(urls))
	return c.Err
}

// Refreshes returns the refreshed URL batches.
func (c *RecordingCDN) Refreshes() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.refreshes)
}

// Prefetches returns the prefetched URL batches.
func (c *RecordingCDN) Prefetches() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.prefetches)
}

var _ deploy.CDN = (*RecordingCDN)(nil)
