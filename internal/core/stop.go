package core

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// StopFlag is the single process-wide polled stop signal, checked by
// every tight polling loop (scanner, downloader) alongside the
// cooperative Shutdown context below. Mirrors the original's
// Arc<AtomicBool> stop flag (dispatcher/src/dispatcher.rs, run()).
type StopFlag struct {
	flag atomic.Bool
}

// Set marks the process as stopping.
func (s *StopFlag) Set() { s.flag.Store(true) }

// IsSet reports whether Set has been called.
func (s *StopFlag) IsSet() bool { return s.flag.Load() }

// Shutdown couples a StopFlag with a context.Context whose Done()
// channel every cooperative goroutine selects against. The original
// used a watch::Receiver<()> broadcast for this; Go's context.Context
// plays the same role for the cooperative half of the system, while
// StopFlag remains the polled signal for the tight blocking loops that
// cannot afford to block on a channel receive.
type Shutdown struct {
	Stop   *StopFlag
	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewShutdown builds a Shutdown coordinator bound to parent.
func NewShutdown(parent context.Context) *Shutdown {
	ctx, cancel := context.WithCancel(parent)
	return &Shutdown{Stop: &StopFlag{}, Ctx: ctx, Cancel: cancel}
}

// Fire sets the stop flag and cancels the shutdown context, waking
// every cooperative select and every polling loop's next check.
func (s *Shutdown) Fire() {
	s.Stop.Set()
	s.Cancel()
}

// WaitFor runs done in the caller's goroutine, blocking until it
// returns, and then logs its outcome, mirroring core/src/lib.rs's
// wait_for helper: failures are
// logged, not propagated, so one component's death does not panic the
// supervisor.
func WaitFor(name string, logger *slog.Logger, done func() error) {
	if err := done(); err != nil {
		logger.Error("component exited with error", "component", name, "error", err)
		return
	}
	logger.Debug("component exited", "component", name)
}
