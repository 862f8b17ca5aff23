package deploy

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// VersionLog is the deployment history, most recent snapshot first.
// It is built once per run, appended to once and then persisted; it is not
// safe for concurrent mutation.
type VersionLog struct {
	records []Snapshot
}

// VersionRef points at a snapshot in the log.
type VersionRef struct {
	Index     int
	Timestamp int64
}

// NewVersionLog creates a log from records in any order.
func NewVersionLog(records ...Snapshot) *VersionLog {
	l := &VersionLog{}
	l.Init(records)
	return l
}

// Init replaces the history with records, sorted newest first.
// Records with equal timestamps keep their relative order.
func (l *VersionLog) Init(records []Snapshot) {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Snapshot) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	l.records = sorted
}

// Append records s as the current version (index 0).
func (l *VersionLog) Append(s Snapshot) {
	l.records = append([]Snapshot{s}, l.records...)
}

// Len returns the number of snapshots.
func (l *VersionLog) Len() int {
	return len(l.records)
}

// LastVersion returns the current snapshot, if any.
func (l *VersionLog) LastVersion() (Snapshot, bool) {
	if len(l.records) == 0 {
		return Snapshot{}, false
	}
	return l.records[0], true
}

// FindVersion returns the most recent snapshot at or after index start that
// contains filename, looking at Upload before Omit. When hash is non-empty
// the entry's hash must match too.
func (l *VersionLog) FindVersion(filename, hash string, start int) (VersionRef, bool) {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(l.records); i++ {
		s := l.records[i]
		if containsFile(s.Upload, filename, hash) || containsFile(s.Omit, filename, hash) {
			return VersionRef{Index: i, Timestamp: s.Timestamp}, true
		}
	}
	return VersionRef{}, false
}

func containsFile(files []FileRecord, filename, hash string) bool {
	for _, f := range files {
		if f.Filename == filename && (hash == "" || f.Hash == hash) {
			return true
		}
	}
	return false
}

// FirstExpiredIndex returns the index of the first expired snapshot, which
// is also the number of fresh snapshots.
//
// With both bounds, a snapshot expires only when it is older than deadline
// AND its index exceeds maxVersions. With one bound, that bound alone
// decides. With neither, nothing expires and Len is returned.
func (l *VersionLog) FirstExpiredIndex(maxVersions *int, deadline *int64) int {
	for i, s := range l.records {
		if expired(i, s.Timestamp, maxVersions, deadline) {
			return i
		}
	}
	return len(l.records)
}

func expired(index int, timestamp int64, maxVersions *int, deadline *int64) bool {
	switch {
	case maxVersions != nil && deadline != nil:
		return timestamp < *deadline && index > *maxVersions
	case deadline != nil:
		return timestamp < *deadline
	case maxVersions != nil:
		return index > *maxVersions
	default:
		return false
	}
}

// FreshVersions returns the snapshots that have not expired.
func (l *VersionLog) FreshVersions(maxVersions *int, deadline *int64) []Snapshot {
	return l.Versions(0, l.FirstExpiredIndex(maxVersions, deadline))
}

// Versions returns a copy of records[start:end], clamped to the log.
func (l *VersionLog) Versions(start, end int) []Snapshot {
	start = max(start, 0)
	end = min(end, len(l.records))
	if start >= end {
		return []Snapshot{}
	}
	return slices.Clone(l.records[start:end])
}

// Snapshots returns a copy of the full history.
func (l *VersionLog) Snapshots() []Snapshot {
	return l.Versions(0, len(l.records))
}

// MarshalLog encodes snapshots in the persisted log format: a JSON array
// indented with two spaces.
func MarshalLog(snapshots []Snapshot) ([]byte, error) {
	out := make([]Snapshot, len(snapshots))
	for i, s := range snapshots {
		out[i] = Snapshot{
			Timestamp: s.Timestamp,
			Upload:    nonNil(s.Upload),
			Omit:      nonNil(s.Omit),
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding version log: %w", err)
	}
	return data, nil
}

// ParseVersionLog decodes a persisted log. Decoding failures wrap ErrLogCorrupt.
func ParseVersionLog(data []byte) (*VersionLog, error) {
	var records []Snapshot
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogCorrupt, err)
	}
	return NewVersionLog(records...), nil
}

func nonNil(files []FileRecord) []FileRecord {
	if files == nil {
		return []FileRecord{}
	}
	return files
}
