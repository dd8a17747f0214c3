package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner performs one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler re-runs a pipeline on a fixed interval. Runs never overlap: the
// next tick is only read after the current run returns.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A nil clock means the real clock.
func NewScheduler(r Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{runner: r, interval: interval, clock: clock, logger: logger}
}

// Run executes one pass immediately and then one per tick until ctx is
// cancelled. A failed pass is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("watch mode started", "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch mode stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("run failed, retrying on next tick", "error", err, "interval", s.interval)
	}
}
