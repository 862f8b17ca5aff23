package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cdnsync/internal/cdn"
	"cdnsync/internal/config"
	"cdnsync/internal/database"
	"cdnsync/internal/deploy"
	"cdnsync/internal/fs"
	"cdnsync/internal/store"
)

// App is the application layer between the CLI and deploy.Service.
// It constructs all dependencies from config, exposes the operations the
// commands need, and records mutating runs in the local database.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	store     deploy.Store
	fsmgr     deploy.FilesystemManager
	retention *deploy.RetentionPolicy
	service   *deploy.Service
	runs      *RunRecorder
	logger    deploy.Logger
	logFile   *os.File
}

// New creates a fully wired App from cfg. Credentials must already be
// loaded. operation names the CLI command in the run history.
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	retention, err := retentionPolicy(cfg.Retention)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	runs := NewRunRecorder(db, deploy.RealClock{}, deploy.UUIDGenerator{}, operation)
	slogger, logFile, err := newLogger(cfg.LogDir, runs.RunID(), cfg.LogLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &App{
		cfg:       cfg,
		db:        db,
		fsmgr:     fs.NewOSFilesystemManager(),
		retention: retention,
		runs:      runs,
		logger:    logger,
		logFile:   logFile,
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	st, err := store.NewStoreFromConfig(ctx, a.cfg.Store, a.cfg.Credentials, a.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	c, err := cdn.NewCDNFromConfig(a.cfg.CDN, a.cfg.Credentials, a.logger)
	if err != nil {
		return fmt.Errorf("creating cdn: %w", err)
	}

	exclude, err := excludeFunc(a.cfg)
	if err != nil {
		return err
	}

	a.store = st
	a.service = deploy.NewService(st, c, a.fsmgr, a.db, a.logger, deploy.RealClock{}, deploy.Options{
		Prefix:      a.cfg.Prefix,
		LogKey:      a.cfg.ResolvedLogKey(),
		URLBase:     strings.TrimRight(a.cfg.Host, "/"),
		Concurrency: a.cfg.Concurrency,
		Exclude:     exclude,
		Retention:   a.retention,
		Refresh:     a.cfg.Refresh,
		Prefetch:    a.cfg.Prefetch,
	})
	return nil
}

// retentionPolicy converts the retention config; nil when neither bound is set.
func retentionPolicy(cfg config.RetentionConfig) (*deploy.RetentionPolicy, error) {
	maxAge, err := cfg.ParseMaxAge()
	if err != nil {
		return nil, err
	}
	policy := &deploy.RetentionPolicy{Versions: cfg.Versions, MaxAge: maxAge}
	if policy.IsZero() {
		return nil, nil
	}
	return policy, nil
}

// excludeFunc combines the configured exclude patterns, the ignore file at
// the root of the source directory and the version log itself.
func excludeFunc(cfg *config.Config) (deploy.ExcludeFunc, error) {
	fns := []deploy.ExcludeFunc{fs.NewIgnoreMatcher(cfg.Exclude).Match}

	if cfg.Source != "" {
		fromFile, err := fs.ParseIgnoreFile(filepath.Join(cfg.Source, fs.IgnoreFileName))
		if err != nil {
			return nil, err
		}
		if len(fromFile) > 0 {
			fns = append(fns, fs.NewIgnoreMatcher(fromFile).Match)
		}
	}

	if logName, ok := strings.CutPrefix(cfg.ResolvedLogKey(), cfg.Prefix); ok {
		fns = append(fns, func(name string) bool { return name == logName })
	}
	return deploy.ExcludeAny(fns...), nil
}

// RunID identifies this invocation in logs and the run history.
func (a *App) RunID() string { return a.runs.RunID() }

// Retention returns the configured retention policy, or nil.
func (a *App) Retention() *deploy.RetentionPolicy { return a.retention }

// Key returns the remote key of a deployed file name.
func (a *App) Key(filename string) string { return a.service.Key(filename) }

// Plan checks the store, then compares the source directory with it.
// Nothing remote is changed.
func (a *App) Plan(ctx context.Context) (*deploy.Plan, error) {
	if a.cfg.Source == "" {
		return nil, errors.New("no source directory configured")
	}
	root, err := a.fsmgr.Resolve(a.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}

	if err := a.store.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("checking store: %w", err)
	}

	plan, _, err := a.service.Deploy(ctx, root, deploy.ApplyOptions{DryRun: true})
	return plan, err
}

// Apply executes plan and records the run in the history.
func (a *App) Apply(ctx context.Context, plan *deploy.Plan, opts deploy.ApplyOptions) (*deploy.Result, error) {
	if err := a.runs.Start(); err != nil {
		return nil, err
	}

	result, err := a.service.Apply(ctx, plan, opts)
	if ferr := a.runs.Finish(plan, result, err); ferr != nil {
		a.logger.Error("could not record run", "error", ferr)
		if err == nil {
			err = ferr
		}
	}
	return result, err
}

// Deploy plans and applies in one step.
func (a *App) Deploy(ctx context.Context, opts deploy.ApplyOptions) (*deploy.Plan, *deploy.Result, error) {
	plan, err := a.Plan(ctx)
	if err != nil {
		return nil, nil, err
	}
	if opts.DryRun {
		return plan, &deploy.Result{}, nil
	}
	result, err := a.Apply(ctx, plan, opts)
	return plan, result, err
}

// Versions reports the remote history under the configured retention policy.
func (a *App) Versions(ctx context.Context) (*deploy.VersionsReport, error) {
	return a.service.Versions(ctx)
}

// Locate returns the versions that reference filename, newest first.
func (a *App) Locate(ctx context.Context, filename string) ([]*deploy.FileHistoryEntry, error) {
	return a.service.Locate(ctx, filename)
}

// History returns the most recent recorded runs.
func (a *App) History(limit int) ([]*deploy.Run, error) {
	return a.service.History(limit)
}

// PruneHashCache drops hash cache entries not written within maxAge and
// returns how many were removed.
func (a *App) PruneHashCache(maxAge time.Duration) (int64, error) {
	n, err := a.db.PruneHashes(time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	a.logger.Info("pruned hash cache", "entries", n, "max_age", maxAge)
	return n, nil
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
