package catalog

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) Catalog {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c, err := OpenSqlite(":memory:", true, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInsertFileUpsert(t *testing.T) {
	c := newTestCatalog(t)
	now := time.Now().UTC().Truncate(time.Second)

	id1, err := c.InsertFile("s1", "/in/a.csv", now, 120, nil)
	require.NoError(t, err)
	assert.NotZero(t, id1)

	hash := "abc123"
	id2, err := c.InsertFile("s1", "/in/a.csv", now.Add(time.Minute), 130, &hash)
	require.NoError(t, err)

	// Uniqueness invariant (spec.md §8 property 1): the same (source,
	// path) key always resolves to the same row id.
	assert.Equal(t, id1, id2)

	info, err := c.GetFile("s1", "/in/a.csv")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(130), info.Size)
	assert.Equal(t, &hash, info.Hash)
}

func TestGetFileMissing(t *testing.T) {
	c := newTestCatalog(t)
	info, err := c.GetFile("s1", "/nope.csv")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestSftpDownloadLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	size := int64(42)

	id, err := c.InsertSftpDownload("s1", "/in/b.csv", &size)
	require.NoError(t, err)
	require.NotZero(t, id)

	fileID, err := c.InsertFile("s1", "/in/b.csv", time.Now().UTC(), size, nil)
	require.NoError(t, err)

	require.NoError(t, c.SetSftpDownloadFile(id, fileID))
	require.NoError(t, c.DeleteSftpDownload(id))
}

func TestInsertDispatched(t *testing.T) {
	c := newTestCatalog(t)
	fileID, err := c.InsertFile("s1", "/in/c.csv", time.Now().UTC(), 1, nil)
	require.NoError(t, err)

	require.NoError(t, c.InsertDispatched(context.Background(), "archive", fileID))
}
