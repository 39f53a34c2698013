package localstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c, err := catalog.OpenSqlite(":memory:", true, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLocalPathPrefixStripping(t *testing.T) {
	s := New("/data", nil)
	assert.Equal(t, "/data/s1/in/a.csv", s.LocalPath("s1", "/in/a.csv", "/"))
	assert.Equal(t, filepath.Join("/data", "s1", "rel/file.csv"), s.LocalPath("s1", "/staging/rel/file.csv", "/staging"))
	assert.Equal(t, filepath.Join("/data", "s1", "staging/rel/file.csv"), s.LocalPath("s1", "/staging/rel/file.csv", "/other"))
}

func TestIngestHardlinksAndRecordsCatalogRow(t *testing.T) {
	cat := newTestCatalog(t)
	root := t.TempDir()
	store := New(root, cat)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.csv")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	fileID, localPath, err := store.Ingest("s1", srcPath, "/", nil, false)
	require.NoError(t, err)
	assert.NotZero(t, fileID)
	assert.FileExists(t, localPath)
	assert.FileExists(t, srcPath) // delete=false keeps the source

	info, err := cat.GetFile("s1", localPath)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(5), info.Size)
}

func TestIngestDeletesSourceWhenRequested(t *testing.T) {
	cat := newTestCatalog(t)
	root := t.TempDir()
	store := New(root, cat)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "b.csv")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	_, _, err := store.Ingest("s1", srcPath, "/", nil, true)
	require.NoError(t, err)
	assert.NoFileExists(t, srcPath)
}
