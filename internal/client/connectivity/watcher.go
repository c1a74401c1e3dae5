package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/logging"
)

// Watcher polls a Checker and reports transitions.
type Watcher struct {
	checker  Checker
	interval time.Duration
	onChange func(online bool)
	logger   logging.Logger

	online atomic.Bool
	known  atomic.Bool
}

// NewWatcher builds a watcher. onChange runs on the polling goroutine for
// every transition, including the first observation.
func NewWatcher(c Checker, interval time.Duration, onChange func(online bool), logger logging.Logger) *Watcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		checker:  c,
		interval: interval,
		onChange: onChange,
		logger:   logger.With("module", "connectivity"),
	}
}

// Online returns the last observed state (false before the first probe).
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Probe checks once and fires onChange on a transition.
func (w *Watcher) Probe(ctx context.Context) bool {
	now := w.checker.Online(ctx)
	prev := w.online.Swap(now)
	first := !w.known.Swap(true)

	if first || prev != now {
		if now {
			w.logger.Info(ctx, "remote reachable")
		} else {
			w.logger.Warn(ctx, "remote unreachable")
		}
		if w.onChange != nil {
			w.onChange(now)
		}
	}
	return now
}

// Run probes immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Probe(ctx)
	for {
		select {
		case <-ticker.C:
			w.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
