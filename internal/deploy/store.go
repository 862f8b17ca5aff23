package deploy

import (
	"context"
	"io"
)

// Store is the remote object store holding the deployed files and the
// version log.
type Store interface {
	// List returns every object whose key starts with prefix. Filenames are
	// full keys; pagination is handled by the implementation.
	List(ctx context.Context, prefix string) ([]FileRecord, error)

	// Fetch returns the content stored under key, or ErrNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Upload writes size bytes from r under key, replacing any existing
	// object, and returns the hash the store computed for it.
	Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// BatchDelete removes keys. Missing keys are not an error.
	BatchDelete(ctx context.Context, keys []string) error

	// ValidateSetup verifies that the store is reachable and configured.
	ValidateSetup(ctx context.Context) error
}

// CDN controls the cache in front of the store.
type CDN interface {
	// Refresh invalidates cached copies of urls.
	Refresh(ctx context.Context, urls []string) error

	// Prefetch warms the cache for urls.
	Prefetch(ctx context.Context, urls []string) error
}
