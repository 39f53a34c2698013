// Package dirsweep is the periodic directory walk fallback of
// spec.md §4.8: a full filepath.WalkDir pass over a directory source
// that guarantees eventual discovery even when the platform watcher
// (internal/dirwatch) is absent or has dropped events. Grounded on
// onedrive-go's full-scan walk shape (internal/sync/fullscan.go).
package dirsweep

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/localintake"
)

// Source describes one directory source's sweep configuration.
type Source struct {
	Name          string
	Directory     string
	Recurse       bool
	Filter        core.Filter
	SweepInterval time.Duration
}

// Sweeper periodically walks a directory source and feeds every
// matching file to the Local Intake, independent of any OS-level
// watch.
type Sweeper struct {
	source Source
	intake chan<- localintake.Record
	log    *slog.Logger
}

// New builds a Sweeper for one directory source.
func New(source Source, intake chan<- localintake.Record, log *slog.Logger) *Sweeper {
	return &Sweeper{source: source, intake: intake, log: log.With("source", source.Name)}
}

// Run sweeps source.Directory and then waits SweepInterval, until
// shutdown fires. The interval is measured from the end of each sweep,
// so a slow sweep never queues up a backlog of missed ticks: the next
// sweep starts one full interval after the previous one finished.
func (s *Sweeper) Run(shutdown *core.Shutdown) error {
	interval := s.source.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	for !shutdown.Stop.IsSet() {
		if err := s.sweep(shutdown); err != nil {
			s.log.Error("sweep failed", "error", err)
		}

		select {
		case <-shutdown.Ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
	return nil
}

func (s *Sweeper) sweep(shutdown *core.Shutdown) error {
	return filepath.WalkDir(s.source.Directory, func(path string, d fs.DirEntry, err error) error {
		if shutdown.Stop.IsSet() {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !s.source.Recurse && path != s.source.Directory {
				return filepath.SkipDir
			}
			return nil
		}

		if s.source.Filter != nil && !s.source.Filter.Matches(filepath.Base(path)) {
			return nil
		}

		record := localintake.Record{SourceName: s.source.Name, Path: path}
		select {
		case s.intake <- record:
		case <-shutdown.Ctx.Done():
			return filepath.SkipAll
		}
		return nil
	})
}
