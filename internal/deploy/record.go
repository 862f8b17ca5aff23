package deploy

import (
	"path/filepath"
	"strings"
)

// ExcludedHash is recorded as the hash of local files skipped by the exclude rules.
const ExcludedHash = "-"

// FileRecord identifies one file by its name relative to the deploy root
// (forward slashes) and its content hash. The hash is only ever compared
// for equality.
type FileRecord struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
}

// Snapshot is one deployment: files written by it (Upload) and files that
// were already present remotely with a matching hash (Omit).
// A filename appears at most once across Upload and Omit.
type Snapshot struct {
	Timestamp int64        `json:"timestamp"`
	Upload    []FileRecord `json:"upload"`
	Omit      []FileRecord `json:"omit"`
}

// Find returns the entry for filename, searching Upload before Omit.
// uploaded reports which list it came from.
func (s Snapshot) Find(filename string) (rec FileRecord, uploaded bool, ok bool) {
	for _, f := range s.Upload {
		if f.Filename == filename {
			return f, true, true
		}
	}
	for _, f := range s.Omit {
		if f.Filename == filename {
			return f, false, true
		}
	}
	return FileRecord{}, false, false
}

// LocalFile is a file found under the deploy root together with its hash.
type LocalFile struct {
	Path *Path
	Name string // relative, forward-slash normalized
	Hash string
}

// Record returns the FileRecord for the local file.
func (f LocalFile) Record() FileRecord {
	return FileRecord{Filename: f.Name, Hash: f.Hash}
}

// normalizeName converts a relative path to forward slashes and drops a
// leading "./".
func normalizeName(name string) string {
	name = filepath.ToSlash(name)
	return strings.TrimPrefix(name, "./")
}
