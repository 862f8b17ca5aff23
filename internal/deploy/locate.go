package deploy

import (
	"context"
	"fmt"
	"time"
)

// FileHistoryEntry is one version of the log that references a file.
type FileHistoryEntry struct {
	VersionIndex int
	DeployedAt   time.Time
	Hash         string
	Uploaded     bool // false when the version kept the file unchanged
	IsCurrent    bool
}

// Locate returns every version that references filename, newest first.
func (s *Service) Locate(ctx context.Context, filename string) ([]*FileHistoryEntry, error) {
	s.logger.Debug("locating file in version log", "file", filename)

	log, err := s.LoadLog(ctx)
	if err != nil {
		return nil, err
	}

	name := normalizeName(filename)
	snapshots := log.Snapshots()

	var entries []*FileHistoryEntry
	for start := 0; ; {
		ref, ok := log.FindVersion(name, "", start)
		if !ok {
			break
		}
		rec, uploaded, _ := snapshots[ref.Index].Find(name)
		entries = append(entries, &FileHistoryEntry{
			VersionIndex: ref.Index,
			DeployedAt:   time.Unix(ref.Timestamp, 0),
			Hash:         rec.Hash,
			Uploaded:     uploaded,
			IsCurrent:    ref.Index == 0,
		})
		start = ref.Index + 1
	}
	return entries, nil
}

// VersionsReport describes the remote history under the configured policy.
type VersionsReport struct {
	Snapshots []Snapshot
	// FirstExpired is the index of the first snapshot expired under the
	// current history; len(Snapshots) when nothing is expired.
	FirstExpired int
}

// Versions loads the remote history and evaluates the retention policy
// against it.
func (s *Service) Versions(ctx context.Context) (*VersionsReport, error) {
	log, err := s.LoadLog(ctx)
	if err != nil {
		return nil, err
	}

	report := &VersionsReport{Snapshots: log.Snapshots(), FirstExpired: log.Len()}
	if s.opts.Retention != nil {
		if last, ok := log.LastVersion(); ok {
			report.FirstExpired = log.FirstExpiredIndex(s.opts.Retention.Versions, s.opts.Retention.Deadline(last))
		}
	}
	return report, nil
}

// History returns the most recent recorded runs, newest first.
func (s *Service) History(limit int) ([]*Run, error) {
	if s.database == nil {
		return nil, fmt.Errorf("no database configured")
	}
	runs, err := s.database.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
