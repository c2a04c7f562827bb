package migrate

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldline/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))

	hist, err := History(context.Background(), conn)
	require.NoError(t, err)
	require.NotEmpty(t, hist)
	assert.Equal(t, 1, hist[0].Version)
	assert.Equal(t, "001_init.sql", hist[0].Name)

	for _, table := range []string{"orders", "molds", "mold_products", "workers", "schedule_allocations", "schedule_runs", "events"} {
		var n int
		err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestApplyOnlyRunsPending(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	now := func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	first := []Migration{{Version: 1, Name: "001_a.sql", UpSQL: `CREATE TABLE a(id INTEGER);`}}
	require.NoError(t, apply(ctx, conn, first, now))
	second := append(first, Migration{Version: 2, Name: "002_b.sql", UpSQL: `CREATE TABLE b(id INTEGER);`})
	require.NoError(t, apply(ctx, conn, second, now))

	hist, err := History(ctx, conn)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-10-01T00:00:00Z", hist[1].AppliedAt)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	bad := []Migration{
		{Version: 1, Name: "001_ok.sql", UpSQL: `CREATE TABLE ok(id INTEGER);`},
		{Version: 2, Name: "002_bad.sql", UpSQL: `CREATE TABLE broken(`},
	}
	err = apply(ctx, conn, bad, time.Now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_bad.sql")

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='ok'`).Scan(&n))
	assert.Zero(t, n)
}

func TestLoadRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/001_b.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := load(fsys, "sql")
	assert.ErrorContains(t, err, "share version 1")
}

func TestLoadSortsAndSkipsOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/010_late.sql":  {Data: []byte("SELECT 1;")},
		"sql/002_early.sql": {Data: []byte("SELECT 1;")},
		"sql/README.md":     {Data: []byte("notes")},
	}
	ms, err := load(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 2, ms[0].Version)
	assert.Equal(t, 10, ms[1].Version)
}
