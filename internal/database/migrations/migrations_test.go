package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateUp(db))

	for _, table := range []string{"hash_cache", "deploy_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s was not created", table)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckStatus(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "needs migration")
	})

	t.Run("migrated database is current", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, MigrateUp(db))
		assert.NoError(t, CheckStatus(db))
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))
	assert.NoError(t, CheckStatus(db))
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestSchema_HashCacheStampColumns(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, MigrateUp(db))

	_, err := db.Exec(`INSERT INTO hash_cache (path, size, mod_time, change_time, inode, hash, hashed_at, used_at)
		VALUES ('/a', 1, 2, 3, 4, 'Fa', 5, 6)`)
	assert.NoError(t, err)
}

func TestSchema_RunIDUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, MigrateUp(db))

	insert := "INSERT INTO deploy_runs (run_id, operation, started_at) VALUES (?, 'deploy', 0)"
	_, err := db.Exec(insert, "run-1")
	require.NoError(t, err)

	_, err = db.Exec(insert, "run-1")
	assert.Error(t, err, "duplicate run_id should violate the unique constraint")
}

func TestSchema_RunDefaults(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, MigrateUp(db))

	_, err := db.Exec("INSERT INTO deploy_runs (run_id, operation, started_at) VALUES ('r', 'deploy', 0)")
	require.NoError(t, err)

	var status, errText string
	var uploaded int
	var finished sql.NullInt64
	err = db.QueryRow("SELECT status, error, uploaded, finished_at FROM deploy_runs WHERE run_id = 'r'").
		Scan(&status, &errText, &uploaded, &finished)
	require.NoError(t, err)
	assert.Equal(t, "running", status)
	assert.Empty(t, errText)
	assert.Zero(t, uploaded)
	assert.False(t, finished.Valid)
}

// openTestDB opens an in-memory SQLite database for testing. A single
// connection keeps every query on the same in-memory database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
