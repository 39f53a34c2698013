//go:build !linux

// On non-Linux platforms there is no recursive inotify-style watch;
// per spec.md §4.7 the core then relies solely on the Sweeper. This
// stub satisfies the same constructor surface so supervisor wiring
// doesn't need a build-tag switch of its own.
package dirwatch

import (
	"log/slog"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/localintake"
)

// Watcher is a no-op on non-Linux platforms.
type Watcher struct {
	log *slog.Logger
}

// New returns a no-op Watcher. events is accepted only to keep this
// stub's constructor signature identical to the Linux build's.
func New(sourceName, directory string, events []string, intake chan<- localintake.Record, log *slog.Logger) *Watcher {
	return &Watcher{log: log.With("source", sourceName)}
}

// Watch logs once and blocks until shutdown, since there is no
// platform event source to drive.
func (w *Watcher) Watch(shutdown *core.Shutdown) error {
	w.log.Info("directory watcher unsupported on this platform, relying on sweeper")
	<-shutdown.Ctx.Done()
	return nil
}
