package localintake

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTestCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	c, err := catalog.OpenSqlite(":memory:", true, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestProcessIngestsAndEmitsFileEvent(t *testing.T) {
	cat := newTestCatalog(t)
	store := localstore.New(t.TempDir(), cat)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.csv")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	source := &core.Source{Name: "s1", Events: make(chan core.FileEvent, 1)}
	intake := New(store, func(name string) *core.Source {
		if name == "s1" {
			return source
		}
		return nil
	}, testLogger())

	intake.process(Record{SourceName: "s1", Path: srcPath})

	select {
	case ev := <-source.Events:
		assert.Equal(t, "s1", ev.SourceName)
		assert.NotZero(t, ev.FileID)
	default:
		t.Fatal("expected a FileEvent to be emitted")
	}
}

func TestProcessSkipsAlreadyIngestedUnchangedFile(t *testing.T) {
	cat := newTestCatalog(t)
	store := localstore.New(t.TempDir(), cat)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "b.csv")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	source := &core.Source{Name: "s1", Events: make(chan core.FileEvent, 2)}
	intake := New(store, func(string) *core.Source { return source }, testLogger())

	intake.process(Record{SourceName: "s1", Path: srcPath})
	<-source.Events

	intake.process(Record{SourceName: "s1", Path: srcPath})

	select {
	case ev := <-source.Events:
		t.Fatalf("expected no second FileEvent, got %+v", ev)
	default:
	}
}

func TestProcessWarnsWhenSourceUnknown(t *testing.T) {
	cat := newTestCatalog(t)
	store := localstore.New(t.TempDir(), cat)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "c.csv")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	var logBuf bytes.Buffer
	intake := New(store, func(string) *core.Source { return nil }, slog.New(slog.NewTextHandler(&logBuf, nil)))
	intake.process(Record{SourceName: "unknown-source", Path: srcPath})

	assert.Contains(t, logBuf.String(), "no runtime source for intake record")
}

func TestRunStopsOnShutdownWhenChannelEmpty(t *testing.T) {
	cat := newTestCatalog(t)
	store := localstore.New(t.TempDir(), cat)
	intake := New(store, func(string) *core.Source { return nil }, testLogger())

	shutdown := core.NewShutdown(context.Background())
	records := make(chan Record)
	shutdown.Fire()

	err := intake.Run(shutdown, records)
	assert.NoError(t, err)
}
