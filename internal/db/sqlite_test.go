package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		noTxLock bool
	}{
		{name: "write", mode: ModeWrite},
		{name: "read", mode: ModeRead, noTxLock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN("/tmp/layers.sqlite", tt.mode)

			assert.True(t, strings.HasPrefix(dsn, "/tmp/layers.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.noTxLock {
				assert.NotContains(t, dsn, "_txlock")
			} else {
				assert.Contains(t, dsn, "_txlock=immediate")
			}
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), "invalid", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_Write(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_ReadDefaultMaxOpen(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), ModeRead, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair_ReadSeesCommittedWrites(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	_, err := writeDB.Exec(`INSERT INTO vt_layers (name, table_name) VALUES ('plots', 'plots')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	names := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = readDB.QueryRow(`SELECT table_name FROM vt_layers WHERE name = 'plots'`).Scan(&names[idx])
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "reader %d failed", i)
		assert.Equal(t, "plots", names[i])
	}
}

func TestRunMigrations_CatalogTables(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	for _, table := range []string{"vt_layers", "vt_fields", "vt_geometry_fields", "vt_field_domains", "vt_field_domain_codes"} {
		var n int
		err := writeDB.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(writeDB))
}

func TestRunMigrations_CascadeDeletesFields(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO vt_layers (name, table_name) VALUES ('plots', 'plots')`)
	require.NoError(t, err)
	_, err = writeDB.Exec(`INSERT INTO vt_fields (layer_name, ordinal, name, field_type) VALUES ('plots', 0, 'name', 'String')`)
	require.NoError(t, err)

	_, err = writeDB.Exec(`DELETE FROM vt_layers WHERE name = 'plots'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, writeDB.QueryRow(`SELECT count(*) FROM vt_fields`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpenDuckDB_Bootstrap(t *testing.T) {
	db := OpenTestDuckDB(t)

	_, err := db.Exec(`INSERT INTO vt_layers (name, table_name) VALUES ('plots', 'plots')`)
	require.NoError(t, err)

	var fidColumn string
	require.NoError(t, db.QueryRow(`SELECT fid_column FROM vt_layers WHERE name = 'plots'`).Scan(&fidColumn))
	assert.Equal(t, "fid", fidColumn)

	// Bootstrapping an existing catalog is a no-op.
	require.NoError(t, BootstrapDuckDB(context.Background(), db))
}
