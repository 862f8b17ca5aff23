package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cdnsync/internal/deploy"
)

// OSFilesystemManager reads the build output from the real filesystem.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*deploy.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeDevice != 0:
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return deploy.NewPath(absPath, info.IsDir(), info, fileStamp(info)), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *deploy.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// FindFiles returns every regular file below root in lexical order.
// Symlinks and other special files are skipped; the deployed tree is
// what a plain upload of root would produce.
func (m *OSFilesystemManager) FindFiles(root *deploy.Path) ([]*deploy.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	var paths []*deploy.Path
	err := filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, deploy.NewPath(p, false, info, fileStamp(info)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

// Compile-time check that OSFilesystemManager implements deploy.FilesystemManager interface
var _ deploy.FilesystemManager = (*OSFilesystemManager)(nil)
