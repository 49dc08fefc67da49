package live

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/onnwee/livewatch/telemetry"
)

// Scheduler runs ticks on a fixed interval and never lets two overlap.
type Scheduler struct {
	tick     func(context.Context) TickReport
	interval time.Duration
	running  atomic.Bool
}

// NewScheduler drives r.Tick every interval.
func NewScheduler(r *Reconciler, interval time.Duration) *Scheduler {
	return &Scheduler{tick: r.Tick, interval: interval}
}

// TryTick runs a tick unless one is already in flight.
func (s *Scheduler) TryTick(ctx context.Context) (TickReport, bool) {
	if !s.running.CompareAndSwap(false, true) {
		telemetry.IncTickSkipped()
		return TickReport{}, false
	}
	defer s.running.Store(false)
	return s.tick(ctx), true
}

// Running reports whether a tick is in flight.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Run ticks immediately and then on every interval until ctx is done. A tick
// that overruns the interval delays the next one rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("live scheduler started", slog.Duration("interval", s.interval))
	s.TryTick(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("live scheduler stopped")
			return ctx.Err()
		case <-t.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.TryTick(ctx)
		}
	}
}
