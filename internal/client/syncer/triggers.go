package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/common"
)

// OnStartup schedules a cycle for application start.
func (s *Service) OnStartup(ctx context.Context) { s.trigger(ctx, TriggerStartup) }

// OnForeground schedules a cycle when the app returns to the foreground.
func (s *Service) OnForeground(ctx context.Context) { s.trigger(ctx, TriggerForeground) }

// SyncNow schedules a user-requested cycle.
func (s *Service) SyncNow(ctx context.Context) { s.trigger(ctx, TriggerManual) }

// OnNetworkChange records reachability and schedules a cycle only when the
// remote comes back after being unreachable.
func (s *Service) OnNetworkChange(ctx context.Context, online bool) {
	was := s.online.Swap(online)
	if online && !was {
		s.trigger(ctx, TriggerReconnect)
	}
}

// Wait blocks until every scheduled cycle has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// trigger runs a cycle in the background so callbacks never block.
func (s *Service) trigger(ctx context.Context, t Trigger) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLogged(ctx, t)
	}()
}

// Run performs a startup cycle, then one per interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.runLogged(ctx, TriggerStartup)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx, TriggerInterval)
		case <-ctx.Done():
			s.Wait()
			return
		}
	}
}

func (s *Service) runLogged(ctx context.Context, t Trigger) {
	_, err := s.RunCycle(ctx, t)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNoOwner):
		s.logger.Debug(ctx, "no signed-in owner, sync skipped", "trigger", t)
	default:
		s.logger.Error(ctx, "sync cycle failed", "trigger", t, "error", err)
	}
}
