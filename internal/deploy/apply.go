package deploy

import (
	"bytes"
	"context"
	"fmt"
)

const (
	// DeleteBatchSize is the number of keys sent per BatchDelete call.
	DeleteBatchSize = 1000
	// CDNBatchSize is the number of URLs sent per refresh or prefetch call.
	CDNBatchSize = 100
)

// ApplyOptions controls which phases of a plan are executed.
type ApplyOptions struct {
	// DryRun stops Deploy after planning.
	DryRun bool
	// SkipClean keeps expired files and persists the untruncated log.
	SkipClean bool
}

// Result summarizes what Apply changed remotely.
type Result struct {
	Uploaded   []FileRecord
	Deleted    []FileRecord
	Mismatched []FileRecord // uploads whose store hash differs from the local one
	Versions   int          // snapshots persisted in the log
}

// Apply executes a plan: upload, delete, persist the log, then refresh and
// prefetch the CDN. Phases run in order and the first failure stops the
// run; CDN failures are only logged.
func (s *Service) Apply(ctx context.Context, plan *Plan, opts ApplyOptions) (*Result, error) {
	result := &Result{}

	if err := s.uploadPhase(ctx, plan, result); err != nil {
		return result, fmt.Errorf("upload phase: %w", err)
	}

	persisted := plan.Persisted()
	if opts.SkipClean {
		persisted = plan.Log.Snapshots()
	} else if err := s.deletePhase(ctx, plan.CleanFiles(), result); err != nil {
		return result, fmt.Errorf("delete phase: %w", err)
	}

	if err := s.persistLog(ctx, persisted); err != nil {
		return result, fmt.Errorf("persisting version log: %w", err)
	}
	result.Versions = len(persisted)

	s.cdnPhase(ctx, plan)

	s.logger.Info("deploy applied",
		"uploaded", len(result.Uploaded),
		"deleted", len(result.Deleted),
		"versions", result.Versions,
	)
	return result, nil
}

func (s *Service) uploadPhase(ctx context.Context, plan *Plan, result *Result) error {
	changed := plan.Classification.Changed()
	remoteHashes := make([]string, len(changed))

	err := runPool(ctx, s.opts.Concurrency, changed, func(ctx context.Context, i int, f FileRecord) error {
		local, ok := plan.local[f.Filename]
		if !ok {
			return fmt.Errorf("no local file for %s", f.Filename)
		}

		rc, err := s.fsmgr.Open(local.Path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Filename, err)
		}
		defer rc.Close()

		key := s.Key(f.Filename)
		remoteHash, err := s.store.Upload(ctx, key, rc, local.Path.Size())
		if err != nil {
			return err
		}
		remoteHashes[i] = remoteHash
		s.logger.Debug("file uploaded", "key", key)
		return nil
	})
	if err != nil {
		return err
	}

	for i, f := range changed {
		if remoteHashes[i] != f.Hash {
			s.logger.Warn("remote hash differs from local hash",
				"file", f.Filename, "local", f.Hash, "remote", remoteHashes[i])
			result.Mismatched = append(result.Mismatched, f)
		}
	}
	result.Uploaded = changed
	return nil
}

func (s *Service) deletePhase(ctx context.Context, clean []FileRecord, result *Result) error {
	if len(clean) == 0 {
		return nil
	}

	for _, batch := range chunk(clean, DeleteBatchSize) {
		keys := make([]string, len(batch))
		for i, f := range batch {
			keys[i] = s.Key(f.Filename)
		}
		if err := s.store.BatchDelete(ctx, keys); err != nil {
			return err
		}
		result.Deleted = append(result.Deleted, batch...)
		s.logger.Info("expired files deleted", "count", len(batch))
	}
	return nil
}

func (s *Service) persistLog(ctx context.Context, snapshots []Snapshot) error {
	data, err := MarshalLog(snapshots)
	if err != nil {
		return err
	}
	if _, err := s.store.Upload(ctx, s.opts.LogKey, bytes.NewReader(data), int64(len(data))); err != nil {
		return err
	}
	s.logger.Debug("version log persisted", "key", s.opts.LogKey, "versions", len(snapshots))
	return nil
}

// cdnPhase refreshes overwritten files and prefetches every written file.
// A replaced version log is refreshed too, so the next run reads it fresh.
func (s *Service) cdnPhase(ctx context.Context, plan *Plan) {
	if s.cdn == nil {
		return
	}

	if s.opts.Refresh {
		urls := s.urls(plan.Classification.Overwrite)
		if plan.Log.Len() > 1 {
			urls = append(urls, s.opts.URLBase+"/"+s.opts.LogKey)
		}
		for _, batch := range chunk(urls, CDNBatchSize) {
			if err := s.cdn.Refresh(ctx, batch); err != nil {
				s.logger.Warn("cdn refresh failed", "urls", len(batch), "error", err)
				continue
			}
			s.logger.Info("cdn refreshed", "urls", len(batch))
		}
	}

	if s.opts.Prefetch {
		urls := s.urls(plan.Classification.Changed())
		for _, batch := range chunk(urls, CDNBatchSize) {
			if err := s.cdn.Prefetch(ctx, batch); err != nil {
				s.logger.Warn("cdn prefetch failed", "urls", len(batch), "error", err)
				continue
			}
			s.logger.Info("cdn prefetched", "urls", len(batch))
		}
	}
}

func (s *Service) urls(files []FileRecord) []string {
	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = s.URL(f.Filename)
	}
	return urls
}
