package deploy

import (
	"io/fs"
	"time"
)

// FileStamp identifies one state of a file on disk. Any write, rename or
// metadata change produces a different stamp, so it keys the hash cache.
type FileStamp struct {
	Size       int64
	ModTime    time.Time
	ChangeTime time.Time
	Inode      uint64
}

// Path is a local file or directory that existed when it was resolved.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
	stamp   *FileStamp
}

// NewPath is called by FilesystemManager implementations. stamp is nil when
// the platform cannot report change time and inode; such files are always
// hashed.
func NewPath(absPath string, isDir bool, info fs.FileInfo, stamp *FileStamp) *Path {
	return &Path{absPath: absPath, isDir: isDir, info: info, stamp: stamp}
}

func (p *Path) String() string { return p.absPath }

func (p *Path) IsDir() bool { return p.isDir }

// Info may be nil for paths built by hand in tests.
func (p *Path) Info() fs.FileInfo { return p.info }

// Stamp returns the file's stamp taken at resolve time.
func (p *Path) Stamp() (FileStamp, bool) {
	if p.stamp == nil {
		return FileStamp{}, false
	}
	return *p.stamp, true
}

// Size returns the size recorded at resolve time, or 0 without stat info.
func (p *Path) Size() int64 {
	if p.info == nil {
		return 0
	}
	return p.info.Size()
}
