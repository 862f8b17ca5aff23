package deploy

import (
	"io"
)

// FilesystemManager provides access to the local build output.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// FindFiles returns every regular file below root, recursively,
	// in lexical order.
	FindFiles(root *Path) ([]*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)
}
