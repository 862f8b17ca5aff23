package deploy

import (
	"slices"
	"time"
)

// RetentionPolicy bounds how much history is kept. A nil field places no
// constraint; with both nil nothing ever expires.
type RetentionPolicy struct {
	// Versions is the number of prior versions kept besides the current one.
	Versions *int
	// MaxAge keeps versions deployed within MaxAge of the current one.
	MaxAge *time.Duration
}

// IsZero reports whether the policy places no constraint at all.
func (p RetentionPolicy) IsZero() bool {
	return p.Versions == nil && p.MaxAge == nil
}

// Expiry is the outcome of applying a retention policy to a log.
type Expiry struct {
	// Index is the first expired snapshot; Fresh holds records[0:Index].
	Index int
	// Clean lists files only referenced by expired snapshots.
	Clean []FileRecord
	Fresh []Snapshot
}

// Deadline returns the timestamp before which snapshots are out of the
// policy's time window, measured from last.
func (p RetentionPolicy) Deadline(last Snapshot) *int64 {
	if p.MaxAge == nil {
		return nil
	}
	d := last.Timestamp - int64(*p.MaxAge/time.Second)
	return &d
}

// Expire computes which remote files can be deleted under policy.
//
// Candidates are the uploads of every expired snapshot plus the omits of the
// oldest one, since those may be the last reference to a file uploaded by a
// snapshot already truncated from the log. A candidate is confirmed only
// when its most recent reference in the whole log is itself expired.
func Expire(log *VersionLog, policy RetentionPolicy) Expiry {
	last, ok := log.LastVersion()
	if !ok {
		return Expiry{Clean: []FileRecord{}, Fresh: []Snapshot{}}
	}

	index := log.FirstExpiredIndex(policy.Versions, policy.Deadline(last))
	expired := log.Versions(index, log.Len())

	clean := []FileRecord{}
	seen := make(map[string]bool)
	for n, s := range expired {
		candidates := s.Upload
		if n == len(expired)-1 {
			candidates = append(slices.Clone(s.Upload), s.Omit...)
		}

		for _, f := range candidates {
			if seen[f.Filename] {
				continue
			}
			seen[f.Filename] = true

			ref, found := log.FindVersion(f.Filename, "", 0)
			if found && ref.Index >= index {
				clean = append(clean, f)
			}
		}
	}

	return Expiry{
		Index: index,
		Clean: clean,
		Fresh: log.Versions(0, index),
	}
}
