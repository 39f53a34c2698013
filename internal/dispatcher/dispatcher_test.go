package dispatcher

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestRouteForwardsOnlyToMatchingConnections(t *testing.T) {
	imgTarget := &core.Target{Name: "images", Events: make(chan core.FileEvent, 1)}
	allTarget := &core.Target{Name: "everything", Events: make(chan core.FileEvent, 1)}

	imgFilter, err := core.NewRegexFilter(`\.jpg$`)
	require.NoError(t, err)

	source := &core.Source{
		Name:   "cam1",
		Events: make(chan core.FileEvent, 1),
		Connections: []*core.Connection{
			{SourceName: "cam1", Target: imgTarget, Filter: imgFilter},
			{SourceName: "cam1", Target: allTarget, Filter: core.AllFilter{}},
		},
	}

	d := New(source, testLogger())
	shutdown := core.NewShutdown(context.Background())

	d.route(shutdown, core.FileEvent{FileID: 1, SourceName: "cam1", Path: "/data/cam1/photo.jpg"})

	select {
	case ev := <-imgTarget.Events:
		assert.Equal(t, "/data/cam1/photo.jpg", ev.Path)
	default:
		t.Fatal("expected event on images target")
	}
	select {
	case ev := <-allTarget.Events:
		assert.Equal(t, "/data/cam1/photo.jpg", ev.Path)
	default:
		t.Fatal("expected event on everything target")
	}
}

func TestRouteSkipsNonMatchingConnection(t *testing.T) {
	imgTarget := &core.Target{Name: "images", Events: make(chan core.FileEvent, 1)}
	imgFilter, err := core.NewRegexFilter(`\.jpg$`)
	require.NoError(t, err)

	source := &core.Source{
		Name:   "cam1",
		Events: make(chan core.FileEvent, 1),
		Connections: []*core.Connection{
			{SourceName: "cam1", Target: imgTarget, Filter: imgFilter},
		},
	}

	d := New(source, testLogger())
	shutdown := core.NewShutdown(context.Background())

	d.route(shutdown, core.FileEvent{FileID: 1, SourceName: "cam1", Path: "/data/cam1/readout.csv"})

	select {
	case ev := <-imgTarget.Events:
		t.Fatalf("unexpected event forwarded: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunDrainsUntilShutdown(t *testing.T) {
	target := &core.Target{Name: "sink", Events: make(chan core.FileEvent, 2)}
	source := &core.Source{
		Name:        "cam1",
		Events:      make(chan core.FileEvent, 2),
		Connections: []*core.Connection{{SourceName: "cam1", Target: target, Filter: core.AllFilter{}}},
	}

	d := New(source, testLogger())
	shutdown := core.NewShutdown(context.Background())

	source.Events <- core.FileEvent{FileID: 1, Path: "/a"}
	source.Events <- core.FileEvent{FileID: 2, Path: "/b"}
	shutdown.Fire()

	done := make(chan error, 1)
	go func() { done <- d.Run(shutdown) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not drain and exit after shutdown")
	}

	assert.Len(t, target.Events, 2)
}
