// Package dispatcher fans a Source's FileEvents out to every Target
// reachable through a matching Connection, per spec.md §4.10. Each
// Source gets one goroutine that reads its inbound channel and
// forwards (possibly cloned) events onto each connected Target's
// channel.
package dispatcher

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
)

// sendTimeout bounds how long the dispatcher blocks trying to hand an
// event to a single target before logging and moving to the next
// connection; a stalled target sink must not stall the other
// connections fed by the same source.
const sendTimeout = 5 * time.Second

// Dispatcher forwards one Source's events to its connected Targets.
type Dispatcher struct {
	source *core.Source
	log    *slog.Logger
}

// New builds a Dispatcher for source.
func New(source *core.Source, log *slog.Logger) *Dispatcher {
	return &Dispatcher{source: source, log: log.With("source", source.Name)}
}

// Run drains source.Events until shutdown fires and the channel is
// empty, routing each event through every connection whose Filter
// matches the event's basename.
func (d *Dispatcher) Run(shutdown *core.Shutdown) error {
	for {
		if shutdown.Stop.IsSet() && len(d.source.Events) == 0 {
			return nil
		}

		select {
		case event, ok := <-d.source.Events:
			if !ok {
				return nil
			}
			d.route(shutdown, event)
		case <-shutdown.Ctx.Done():
			if len(d.source.Events) == 0 {
				return nil
			}
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) route(shutdown *core.Shutdown, event core.FileEvent) {
	basename := filepath.Base(event.Path)
	matched := 0

	for _, conn := range d.source.Connections {
		if conn.Filter != nil && !conn.Filter.Matches(basename) {
			continue
		}
		matched++
		d.forward(shutdown, conn, event)
	}

	if matched == 0 {
		d.log.Debug("file event matched no connection", "path", event.Path)
	}
}

func (d *Dispatcher) forward(shutdown *core.Shutdown, conn *core.Connection, event core.FileEvent) {
	// A target with room always receives the event, even after shutdown
	// has fired, so Run's drain delivers what is already queued.
	select {
	case conn.Target.Events <- event:
		return
	default:
	}

	select {
	case conn.Target.Events <- event:
	case <-shutdown.Ctx.Done():
	case <-time.After(sendTimeout):
		err := direrrors.Newf("target channel send timed out").
			Component("dispatcher").
			Category(direrrors.CategoryOther).
			Context("target", conn.Target.Name).
			Context("path", event.Path).Build()
		d.log.Error("dropping event, target not draining", "error", err)
	}
}
