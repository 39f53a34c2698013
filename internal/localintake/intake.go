// Package localintake is the single receiver of local intake records
// from both the Directory Watcher and the Directory Sweeper,
// implementing spec.md §4.9: dedupe against the catalog, ingest via
// the Local Store, and emit a FileEvent for the dispatcher.
package localintake

import (
	"log/slog"
	"os"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/localstore"
)

// Record is one observation handed to the intake by a Watcher or
// Sweeper: a source name and an absolute local path.
type Record struct {
	SourceName string
	Path       string
}

// Intake drains Records from a single blocking channel and ingests
// each one, per spec.md §4.9.
type Intake struct {
	store  *localstore.Store
	source func(name string) *core.Source
	log    *slog.Logger
}

// New builds an Intake. sourceByName resolves a source name to its
// runtime core.Source so the ingested FileEvent can be placed on the
// right outbound channel.
func New(store *localstore.Store, sourceByName func(name string) *core.Source, log *slog.Logger) *Intake {
	return &Intake{store: store, source: sourceByName, log: log}
}

// Run drains records until shutdown fires and the channel is
// empty/closed.
func (i *Intake) Run(shutdown *core.Shutdown, records <-chan Record) error {
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			i.process(rec)
		case <-shutdown.Ctx.Done():
			if len(records) == 0 {
				return nil
			}
		}
	}
}

func (i *Intake) process(rec Record) {
	if i.alreadyIngested(rec) {
		return
	}

	fileID, storedPath, err := i.store.Ingest(rec.SourceName, rec.Path, "/", nil, false)
	if err != nil {
		i.log.Error("local ingest failed", "source", rec.SourceName, "path", rec.Path, "error", err)
		return
	}

	src := i.source(rec.SourceName)
	if src == nil {
		i.log.Warn("no runtime source for intake record", "source", rec.SourceName)
		return
	}

	src.Events <- core.FileEvent{FileID: fileID, SourceName: rec.SourceName, Path: storedPath}
}

// alreadyIngested reports whether the catalog already has a row for
// this record's local path whose size and modification time match the
// file currently on disk, so a duplicate watcher/sweeper observation
// does not re-ingest.
func (i *Intake) alreadyIngested(rec Record) bool {
	existing, err := i.store.GetFileInfo(rec.SourceName, rec.Path, "/")
	if err != nil {
		i.log.Error("catalog lookup failed", "source", rec.SourceName, "path", rec.Path, "error", err)
		return false
	}
	if existing == nil {
		return false
	}

	meta, err := os.Stat(rec.Path)
	if err != nil {
		return false
	}
	return existing.Modified.Equal(meta.ModTime().UTC()) && existing.Size == meta.Size()
}
