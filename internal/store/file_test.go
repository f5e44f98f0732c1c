package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmerrifield20/qldb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStore_reopenRestoresTail(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	recs := records(t, 4)
	for _, r := range recs {
		require.NoError(t, s.AppendRecord(ctx, r))
	}

	reopened, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	tail, err := reopened.Tail(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs[3].Hash, tail)
}

func TestFileStore_lineFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.AppendRecord(ctx, records(t, 1)[0]))

	raw, err := os.ReadFile(filepath.Join(dir, store.RecordsFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"prevhash":"0"`)
	assert.Contains(t, lines[0], `"html":"<b>&</b>"`, "payload is stored unescaped")
}

func TestFileStore_malformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, store.RecordsFile)
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\"}\n\nnot json\n"), 0o644))

	_, err := store.NewFileStore(dir, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
