package dirsweep

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/localintake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSweeperFindsMatchingFilesOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.dat"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("x"), 0o644))

	filter, err := core.NewRegexFilter(`\.txt$`)
	require.NoError(t, err)

	intake := make(chan localintake.Record, 10)
	sw := New(Source{Name: "src", Directory: dir, Recurse: true, Filter: filter}, intake, testLogger())

	shutdown := core.NewShutdown(context.Background())
	require.NoError(t, sw.sweep(shutdown))
	close(intake)

	var paths []string
	for rec := range intake {
		paths = append(paths, rec.Path)
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "sub", "c.txt"),
	}, paths)
}

func TestSweeperNonRecursiveSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	intake := make(chan localintake.Record, 10)
	sw := New(Source{Name: "src", Directory: dir, Recurse: false, Filter: core.AllFilter{}}, intake, testLogger())

	shutdown := core.NewShutdown(context.Background())
	require.NoError(t, sw.sweep(shutdown))
	close(intake)

	var paths []string
	for rec := range intake {
		paths = append(paths, rec.Path)
	}
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, paths)
}

func TestSweeperStopsWhenShutdownRequested(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	intake := make(chan localintake.Record)
	sw := New(Source{Name: "src", Directory: dir, Recurse: true, Filter: core.AllFilter{}}, intake, testLogger())

	shutdown := core.NewShutdown(context.Background())
	shutdown.Fire()

	done := make(chan error, 1)
	go func() { done <- sw.sweep(shutdown) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweep did not return after shutdown fired")
	}
}
