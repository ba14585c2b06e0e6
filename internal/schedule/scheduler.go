// Package schedule drives the posting cycle and the delayed follow-up
// passes.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/metrics"
)

// Cycle is one posting round.
type Cycle func(ctx context.Context) error

// Scheduler runs a Cycle right away and then every Interval. A tick that
// lands while the previous cycle is still running is skipped.
type Scheduler struct {
	Interval time.Duration

	cycle   Cycle
	running sync.Mutex
	wg      sync.WaitGroup
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(interval time.Duration, cycle Cycle, m *metrics.Metrics) *Scheduler {
	if m == nil {
		m = metrics.Global
	}
	return &Scheduler{
		Interval: interval,
		cycle:    cycle,
		metrics:  m,
		log:      logger.With("scheduler"),
	}
}

// Run blocks until ctx is done, then waits for the cycle in flight.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.Interval)
	s.Trigger(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a cycle in the background and reports whether it did;
// it returns false when a cycle is already running.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.metrics.IncrementCyclesSkipped()
		s.log.Warn("previous cycle still running, skipping")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.runOnce(ctx)
	}()
	return true
}

// Wait blocks until the cycle in flight, if any, returns.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	err := s.cycle(ctx)
	d := time.Since(start)
	if err != nil && ctx.Err() == nil {
		s.metrics.SetError(err.Error())
		s.log.Error("cycle failed", "duration", d, "error", err)
		return
	}
	s.metrics.RecordCycle(d)
	s.log.Info("cycle finished", "duration", d)
}
