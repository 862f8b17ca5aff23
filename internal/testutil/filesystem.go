package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cdnsync/internal/deploy"
)

// MockFile is a file or directory in the mock filesystem.
type MockFile struct {
	Content     []byte
	ModTime     time.Time
	ChangeTime  time.Time
	Inode       uint64
	IsDirectory bool
}

// mockEpoch is the time of the first change in a mock filesystem. Every
// later change happens one second after the previous one.
var mockEpoch = time.Unix(1700000000, 0)

// mockInodes is shared by all mock filesystems so that a rebuilt tree never
// reuses an inode, as on a real disk.
var mockInodes atomic.Uint64

// MockFilesystemManager is an in-memory build output for tests. Paths are
// absolute and slash separated. Parent directories are created implicitly.
// Like a real filesystem, every write or touch moves the file's change
// time forward.
type MockFilesystemManager struct {
	mu      sync.Mutex
	files   map[string]*MockFile
	opens   map[string]int
	changes int
}

func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		opens: make(map[string]int),
	}
}

// AddFile adds or replaces a file, creating its parent directories.
// Replacing a file writes it in place: the inode is kept and both the
// modification and change times move forward.
func (m *MockFilesystemManager) AddFile(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = path.Clean(p)
	now := m.tick()
	if f, ok := m.files[p]; ok && !f.IsDirectory {
		f.Content = content
		f.ModTime = now
		f.ChangeTime = now
		return
	}

	m.files[p] = &MockFile{Content: content, ModTime: now, ChangeTime: now, Inode: mockInodes.Add(1)}
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := m.files[dir]; !ok {
			m.files[dir] = &MockFile{IsDirectory: true}
		}
	}
}

// Rewrite replaces the content of an existing file and restores its
// previous modification time, as `cp -p` or a reproducible build does.
// Only the change time reveals the write.
func (m *MockFilesystemManager) Rewrite(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path.Clean(p)]; ok {
		f.Content = content
		f.ChangeTime = m.tick()
	}
}

// tick advances the mock clock by one change. Caller holds m.mu.
func (m *MockFilesystemManager) tick() time.Time {
	m.changes++
	return mockEpoch.Add(time.Duration(m.changes) * time.Second)
}

// AddDirectory adds an empty directory.
func (m *MockFilesystemManager) AddDirectory(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(p)] = &MockFile{IsDirectory: true}
}

// Touch changes the modification time of a file.
func (m *MockFilesystemManager) Touch(p string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path.Clean(p)]; ok {
		f.ModTime = modTime
		f.ChangeTime = m.tick()
	}
}

// Opens returns how many times the file at p was opened.
func (m *MockFilesystemManager) Opens(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[path.Clean(p)]
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*deploy.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := path.Clean(rawPath)
	file, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return m.pathFor(p, file), nil
}

func (m *MockFilesystemManager) FindFiles(root *deploy.Path) ([]*deploy.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(root.String(), "/") + "/"
	var names []string
	for p, f := range m.files {
		if !f.IsDirectory && strings.HasPrefix(p, prefix) {
			names = append(names, p)
		}
	}
	slices.Sort(names)

	paths := make([]*deploy.Path, len(names))
	for i, p := range names {
		paths[i] = m.pathFor(p, m.files[p])
	}
	return paths, nil
}

func (m *MockFilesystemManager) Open(p *deploy.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[p.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", p.String())
	}
	m.opens[p.String()]++
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) pathFor(p string, file *MockFile) *deploy.Path {
	info := &mockFileInfo{
		name:    path.Base(p),
		size:    int64(len(file.Content)),
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
	var stamp *deploy.FileStamp
	if !file.IsDirectory {
		stamp = &deploy.FileStamp{
			Size:       info.size,
			ModTime:    file.ModTime,
			ChangeTime: file.ChangeTime,
			Inode:      file.Inode,
		}
	}
	return deploy.NewPath(p, file.IsDirectory, info, stamp)
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

func (m *mockFileInfo) Mode() fs.FileMode {
	if m.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}

// Compile-time check
var _ deploy.FilesystemManager = (*MockFilesystemManager)(nil)
