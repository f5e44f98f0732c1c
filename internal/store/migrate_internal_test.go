package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersion(t *testing.T) {
	v, err := migrationVersion("001_ledger.up.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = migrationVersion("0042_more_things.up.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = migrationVersion("ledger.up.sql")
	assert.Error(t, err)
	_, err = migrationVersion("x_ledger.up.sql")
	assert.Error(t, err)
}

func TestMigrationFiles_upOnlySorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.up.sql", "001_a.down.sql", "001_a.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.up.sql"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.up.sql", "002_b.up.sql"}, files)
}

func TestMigrationFiles_missingDir(t *testing.T) {
	_, err := migrationFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
