package database

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_visits.sql":   {Data: []byte("CREATE TABLE visits ();")},
		"002_audit.sql":    {Data: []byte("CREATE TABLE audit ();")},
		"README.md":        {Data: []byte("notes")},
		"archive/x.sql":    {Data: []byte("DROP TABLE x;")},
		"001_families.sql": {Data: []byte("CREATE TABLE families ();")},
	}

	all, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "001_families", all[0].version)
	assert.Equal(t, "002_audit", all[1].version)
	assert.Equal(t, "010_visits", all[2].version)
	assert.Equal(t, "CREATE TABLE audit ();", all[1].sql)
}

func TestPendingSkipsApplied(t *testing.T) {
	all := []migration{{version: "001_a"}, {version: "002_b"}, {version: "003_c"}}

	todo := pending(all, map[string]bool{"001_a": true, "003_c": true})
	require.Len(t, todo, 1)
	assert.Equal(t, "002_b", todo[0].version)

	assert.Empty(t, pending(all, map[string]bool{"001_a": true, "002_b": true, "003_c": true}))
}

func TestEmbeddedMigrations(t *testing.T) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	require.NoError(t, err)

	all, err := loadMigrations(sub)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "001_aid_schema", all[0].version)
	for _, m := range all {
		assert.NotEmpty(t, m.sql, m.version)
	}
}

func TestApplyPoolLimits(t *testing.T) {
	pc, err := pgxpool.ParseConfig("host=localhost dbname=omnia")
	require.NoError(t, err)

	applyPoolLimits(pc, config.DatabaseConfig{MaxConns: 8, MinConns: 12})
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(8), pc.MinConns)

	defaults, err := pgxpool.ParseConfig("host=localhost dbname=omnia")
	require.NoError(t, err)
	want := defaults.MaxConns
	applyPoolLimits(defaults, config.DatabaseConfig{})
	assert.Equal(t, want, defaults.MaxConns)
}
