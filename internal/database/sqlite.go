package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cdnsync/internal/database/migrations"
	"cdnsync/internal/deploy"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run statuses stored in deploy_runs.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// SQLiteDatabase implements the deploy.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and applies pending
// migrations. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// The pool is limited to one connection: SQLite serializes writers anyway,
// and ":memory:" databases exist per connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Hash cache

// racyWindow is how long after a file's last change its hash is not
// trusted. Kernel timestamps are coarse, so a rewrite within the same
// tick can leave the stamp unchanged.
const racyWindow = time.Second

// LookupHash returns the cached hash for absPath if the file still has the
// cached stamp. Entries hashed within racyWindow of the file's change time
// are ignored. A hit marks the entry as used.
func (s *SQLiteDatabase) LookupHash(absPath string, stamp deploy.FileStamp) (string, bool, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT hash FROM hash_cache
		 WHERE path = ? AND size = ? AND mod_time = ? AND change_time = ? AND inode = ?
		   AND change_time < hashed_at - ?`,
		absPath, stamp.Size, stamp.ModTime.UnixNano(), stamp.ChangeTime.UnixNano(), int64(stamp.Inode),
		racyWindow.Nanoseconds(),
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up hash for %s: %w", absPath, err)
	}

	if _, err := s.db.Exec(`UPDATE hash_cache SET used_at = ? WHERE path = ?`, time.Now().UnixNano(), absPath); err != nil {
		return "", false, fmt.Errorf("marking hash for %s as used: %w", absPath, err)
	}
	return hash, true, nil
}

// StoreHash records hash for absPath in the state stamp, replacing any
// previous entry.
func (s *SQLiteDatabase) StoreHash(absPath string, stamp deploy.FileStamp, hash string) error {
	now := time.Now().UnixNano()
	_, err := s.db.Exec(
		`INSERT INTO hash_cache (path, size, mod_time, change_time, inode, hash, hashed_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO UPDATE SET
		   size = excluded.size, mod_time = excluded.mod_time,
		   change_time = excluded.change_time, inode = excluded.inode,
		   hash = excluded.hash, hashed_at = excluded.hashed_at, used_at = excluded.used_at`,
		absPath, stamp.Size, stamp.ModTime.UnixNano(), stamp.ChangeTime.UnixNano(), int64(stamp.Inode),
		hash, now, now,
	)
	if err != nil {
		return fmt.Errorf("storing hash for %s: %w", absPath, err)
	}
	return nil
}

// PruneHashes removes cache entries neither stored nor used since before.
func (s *SQLiteDatabase) PruneHashes(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM hash_cache WHERE used_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning hash cache: %w", err)
	}
	return res.RowsAffected()
}

// Run tracking

// CreateRun records the start of a run.
func (s *SQLiteDatabase) CreateRun(runID, operation string, startedAt time.Time) (*deploy.Run, error) {
	res, err := s.db.Exec(
		`INSERT INTO deploy_runs (run_id, operation, started_at, status) VALUES (?, ?, ?, ?)`,
		runID, operation, startedAt.UnixNano(), StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading run id: %w", err)
	}
	return &deploy.Run{
		ID:        id,
		RunID:     runID,
		Operation: operation,
		StartedAt: startedAt,
		Status:    StatusRunning,
	}, nil
}

// FinishRun stores the outcome of run.
func (s *SQLiteDatabase) FinishRun(run *deploy.Run) error {
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixNano(), Valid: true}
	}
	res, err := s.db.Exec(
		`UPDATE deploy_runs SET finished_at = ?, status = ?, uploaded = ?, overwritten = ?,
		   omitted = ?, excluded = ?, deleted = ?, error = ?
		 WHERE id = ?`,
		finished, run.Status, run.Uploaded, run.Overwritten,
		run.Omitted, run.Excluded, run.Deleted, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run: no run with id %d", run.ID)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteDatabase) ListRuns(limit int) ([]*deploy.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, operation, started_at, finished_at, status,
		        uploaded, overwritten, omitted, excluded, deleted, error
		 FROM deploy_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*deploy.Run
	for rows.Next() {
		var (
			run      deploy.Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.Operation, &started, &finished, &run.Status,
			&run.Uploaded, &run.Overwritten, &run.Omitted, &run.Excluded, &run.Deleted, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		if finished.Valid {
			t := time.Unix(0, finished.Int64)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements deploy.Database interface
var _ deploy.Database = (*SQLiteDatabase)(nil)
