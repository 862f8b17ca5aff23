package deploy

import "strings"

// ExcludeFunc reports whether a local file, given by its normalized relative
// name, must be left out of the deployment.
type ExcludeFunc func(name string) bool

// ExcludeAny combines predicates; the result excludes a name when any of
// them does. Nil predicates are ignored.
func ExcludeAny(fns ...ExcludeFunc) ExcludeFunc {
	return func(name string) bool {
		for _, fn := range fns {
			if fn != nil && fn(name) {
				return true
			}
		}
		return false
	}
}

// DiffOptions controls how local files are matched with remote ones.
type DiffOptions struct {
	// Prefix is stripped from remote names before matching.
	Prefix string
	// Exclude may be nil.
	Exclude ExcludeFunc
}

// Classification partitions local files against the remote state.
// Every local file lands in exactly one of Excluded, Omit, Upload and
// Overwrite, in local enumeration order.
type Classification struct {
	Remote    []FileRecord // remote files under the prefix, prefix stripped
	Excluded  []FileRecord
	Omit      []FileRecord // same name, same hash
	Upload    []FileRecord // not present remotely
	Overwrite []FileRecord // same name, different hash
}

// Diff classifies local files against remote files.
func Diff(remote, local []FileRecord, opts DiffOptions) Classification {
	c := Classification{
		Remote:    []FileRecord{},
		Excluded:  []FileRecord{},
		Omit:      []FileRecord{},
		Upload:    []FileRecord{},
		Overwrite: []FileRecord{},
	}

	byName := make(map[string]string, len(remote))
	for _, r := range remote {
		name, ok := strings.CutPrefix(normalizeName(r.Filename), opts.Prefix)
		if !ok || name == "" {
			continue
		}
		rec := FileRecord{Filename: name, Hash: r.Hash}
		c.Remote = append(c.Remote, rec)
		byName[name] = r.Hash
	}

	for _, l := range local {
		name := normalizeName(l.Filename)
		if opts.Exclude != nil && opts.Exclude(name) {
			c.Excluded = append(c.Excluded, FileRecord{Filename: name, Hash: ExcludedHash})
			continue
		}

		rec := FileRecord{Filename: name, Hash: l.Hash}
		remoteHash, found := byName[name]
		switch {
		case !found:
			c.Upload = append(c.Upload, rec)
		case remoteHash == l.Hash:
			c.Omit = append(c.Omit, rec)
		default:
			c.Overwrite = append(c.Overwrite, rec)
		}
	}

	return c
}

// Snapshot builds the snapshot recorded for this classification:
// new and changed files are uploads, unchanged files are omits.
func (c Classification) Snapshot(timestamp int64) Snapshot {
	upload := make([]FileRecord, 0, len(c.Upload)+len(c.Overwrite))
	upload = append(upload, c.Upload...)
	upload = append(upload, c.Overwrite...)

	omit := make([]FileRecord, len(c.Omit))
	copy(omit, c.Omit)

	return Snapshot{Timestamp: timestamp, Upload: upload, Omit: omit}
}

// Changed returns the files that must be written to the store.
func (c Classification) Changed() []FileRecord {
	return c.Snapshot(0).Upload
}
