package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"cdnsync/internal/etag"
)

// Options configures a Service.
type Options struct {
	// Prefix is prepended to every filename to form its remote key.
	Prefix string
	// LogKey is the remote key of the version log.
	LogKey string
	// URLBase is the CDN origin ("https://cdn.example.com") used to build
	// refresh and prefetch URLs.
	URLBase string
	// Concurrency bounds parallel file reads and uploads.
	Concurrency int
	Exclude     ExcludeFunc
	// Retention enables the clean phase when non-nil.
	Retention *RetentionPolicy
	Refresh   bool
	Prefetch  bool
}

// Service runs deployments: it compares the local build output with the
// store, records the deployment in the version log and reclaims files that
// no retained version references.
type Service struct {
	store    Store
	cdn      CDN
	fsmgr    FilesystemManager
	database Database
	logger   Logger
	clock    Clock
	opts     Options
}

// NewService creates a Service. cdn and database may be nil.
func NewService(store Store, cdn CDN, fsmgr FilesystemManager, database Database, logger Logger, clock Clock, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Service{
		store:    store,
		cdn:      cdn,
		fsmgr:    fsmgr,
		database: database,
		logger:   logger,
		clock:    clock,
		opts:     opts,
	}
}

// Plan is the immutable outcome of comparing local and remote state.
type Plan struct {
	Classification Classification
	// Snapshot is the version recorded for this deployment.
	Snapshot Snapshot
	// Log is the history with Snapshot appended.
	Log *VersionLog
	// Expiry is nil when no retention policy is configured.
	Expiry *Expiry

	local map[string]LocalFile
}

// Persisted returns the snapshots to write back to the store: the fresh
// versions when a retention policy applies, the full history otherwise.
func (p *Plan) Persisted() []Snapshot {
	if p.Expiry != nil {
		return p.Expiry.Fresh
	}
	return p.Log.Snapshots()
}

// Deploy runs a full deployment of the files below root.
// With apply.DryRun the run stops after planning and nothing remote is changed.
func (s *Service) Deploy(ctx context.Context, root *Path, apply ApplyOptions) (*Plan, *Result, error) {
	s.logger.Info("deploy started", "root", root.String(), "prefix", s.opts.Prefix)

	remote, err := s.ListRemote(ctx)
	if err != nil {
		return nil, nil, err
	}

	log, err := s.LoadLog(ctx)
	if err != nil {
		return nil, nil, err
	}

	local, err := s.ScanLocal(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	plan := s.Plan(remote, local, log)
	if apply.DryRun {
		s.logger.Info("dry run, nothing applied")
		return plan, &Result{}, nil
	}

	result, err := s.Apply(ctx, plan, apply)
	if err != nil {
		return plan, result, err
	}
	return plan, result, nil
}

// ListRemote lists the files currently under the configured prefix.
func (s *Service) ListRemote(ctx context.Context) ([]FileRecord, error) {
	remote, err := s.store.List(ctx, s.opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("listing remote files: %w", err)
	}
	s.logger.Debug("remote files listed", "count", len(remote))
	return remote, nil
}

// LoadLog fetches and parses the version log. A missing log is an empty
// history.
func (s *Service) LoadLog(ctx context.Context) (*VersionLog, error) {
	data, err := s.store.Fetch(ctx, s.opts.LogKey)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no version log found, starting a new history", "key", s.opts.LogKey)
		return NewVersionLog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching version log: %w", err)
	}

	log, err := ParseVersionLog(data)
	if err != nil {
		return nil, fmt.Errorf("reading version log %s: %w", s.opts.LogKey, err)
	}
	s.logger.Debug("version log loaded", "versions", log.Len())
	return log, nil
}

// ScanLocal finds and hashes every file below root. Files are read in
// parallel; cached hashes are reused while size and mtime are unchanged.
func (s *Service) ScanLocal(ctx context.Context, root *Path) ([]LocalFile, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("deploy root is not a directory: %s", root.String())
	}

	paths, err := s.fsmgr.FindFiles(root)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	files := make([]LocalFile, len(paths))
	err = runPool(ctx, s.opts.Concurrency, paths, func(ctx context.Context, i int, p *Path) error {
		rel, err := filepath.Rel(root.String(), p.String())
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}

		hash, err := s.hashFile(p)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", rel, err)
		}

		files[i] = LocalFile{Path: p, Name: normalizeName(rel), Hash: hash}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("local files hashed", "count", len(files))
	return files, nil
}

// hashFile returns the content hash of p, consulting the cache first.
// Files without a stamp are always read.
func (s *Service) hashFile(p *Path) (string, error) {
	stamp, cacheable := p.Stamp()
	cacheable = cacheable && s.database != nil
	if cacheable {
		hash, ok, err := s.database.LookupHash(p.String(), stamp)
		if err != nil {
			return "", fmt.Errorf("looking up cached hash: %w", err)
		}
		if ok {
			return hash, nil
		}
	}

	rc, err := s.fsmgr.Open(p)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	hash, err := etag.Compute(rc)
	if err != nil {
		return "", err
	}

	if cacheable {
		if err := s.database.StoreHash(p.String(), stamp, hash); err != nil {
			return "", fmt.Errorf("caching hash: %w", err)
		}
	}
	return hash, nil
}

// Plan classifies local files, appends the resulting snapshot to log and,
// when a retention policy is configured, computes the files to clean.
// log is not modified; the returned plan carries its own copy.
func (s *Service) Plan(remote []FileRecord, local []LocalFile, log *VersionLog) *Plan {
	records := make([]FileRecord, len(local))
	byName := make(map[string]LocalFile, len(local))
	for i, f := range local {
		records[i] = f.Record()
		byName[f.Name] = f
	}

	c := Diff(remote, records, DiffOptions{Prefix: s.opts.Prefix, Exclude: s.opts.Exclude})
	snapshot := c.Snapshot(s.clock.Now().Unix())

	next := NewVersionLog(log.Snapshots()...)
	next.Append(snapshot)

	plan := &Plan{
		Classification: c,
		Snapshot:       snapshot,
		Log:            next,
		local:          byName,
	}

	if s.opts.Retention != nil && !s.opts.Retention.IsZero() {
		expiry := Expire(next, *s.opts.Retention)
		plan.Expiry = &expiry
	}

	s.logger.Info("deploy planned",
		"upload", len(c.Upload),
		"overwrite", len(c.Overwrite),
		"omit", len(c.Omit),
		"excluded", len(c.Excluded),
		"clean", len(plan.CleanFiles()),
	)
	return plan
}

// CleanFiles returns the files the plan would delete.
func (p *Plan) CleanFiles() []FileRecord {
	if p.Expiry == nil {
		return []FileRecord{}
	}
	return p.Expiry.Clean
}

// Key returns the remote key for filename.
func (s *Service) Key(filename string) string {
	return s.opts.Prefix + filename
}

// URL returns the CDN URL for filename.
func (s *Service) URL(filename string) string {
	return s.opts.URLBase + "/" + s.Key(filename)
}
