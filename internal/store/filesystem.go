package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cdnsync/internal/deploy"
	"cdnsync/internal/etag"
)

// FileSystemStore is a Store backed by a local directory. Object keys map to
// files below the root, with "/" in keys becoming subdirectories:
//
//	<root>/
//	  assets/app.3f2a.js
//	  index.html
//	  .cdnsync.json   (version log)
type FileSystemStore struct {
	name string
	root string
}

// NewFileSystemStore creates a new filesystem store rooted at the given path.
func NewFileSystemStore(name, root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	return &FileSystemStore{
		name: name,
		root: root,
	}, nil
}

// objectPath maps a key to its file. Keys are cleaned as rooted paths so
// ".." segments never leave the root.
func (s *FileSystemStore) objectPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || strings.HasSuffix(key, "/") || clean == "/" {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

// List hashes every file below the root whose key starts with prefix.
func (s *FileSystemStore) List(_ context.Context, prefix string) ([]deploy.FileRecord, error) {
	var records []deploy.FileRecord
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		hash, err := hashFile(p)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", key, err)
		}
		records = append(records, deploy.FileRecord{Filename: key, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, deploy.NewOpError("list", prefix, err)
	}
	return records, nil
}

// Fetch reads the object stored under key.
func (s *FileSystemStore) Fetch(_ context.Context, key string) ([]byte, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, deploy.NewOpError("fetch", key, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, deploy.NewOpError("fetch", key, deploy.ErrNotFound)
		}
		return nil, deploy.NewOpError("fetch", key, fmt.Errorf("failed to read file: %w", err))
	}
	return data, nil
}

// Upload writes r to the object's file and returns the hash of what was written.
func (s *FileSystemStore) Upload(_ context.Context, key string, r io.Reader, size int64) (string, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("failed to create directory: %w", err))
	}
	if err := s.writeFile(p, r, size); err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}

	hash, err := hashFile(p)
	if err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}
	return hash, nil
}

// BatchDelete removes the files for keys. Missing files are ignored.
func (s *FileSystemStore) BatchDelete(_ context.Context, keys []string) error {
	for _, key := range keys {
		p, err := s.objectPath(key)
		if err != nil {
			return deploy.NewOpError("delete", key, err)
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deploy.NewOpError("delete", key, err)
		}
	}
	return nil
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return etag.Compute(f)
}

// Compile-time check that FileSystemStore implements deploy.Store interface
var _ deploy.Store = (*FileSystemStore)(nil)
