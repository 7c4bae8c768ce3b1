package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_ArePaired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFiles, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationFiles_CreateCollectorTables(t *testing.T) {
	up, err := fs.ReadFile(MigrationFiles, "000001_create_rum_tables.up.sql")
	require.NoError(t, err)

	sql := string(up)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS rum_batches")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS rum_events")
	assert.Contains(t, sql, "PRIMARY KEY (app_id, batch_id)")
}
