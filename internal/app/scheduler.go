package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cryptoRateWatch/internal/ports"
)

// DefaultSchedulerInterval is the wait between ingestion cycles.
const DefaultSchedulerInterval = 5 * time.Minute

// SchedulerStats counts cycle outcomes since the scheduler was created.
type SchedulerStats struct {
	Cycles    int
	Failures  int
	LastRun   time.Time
	LastError string
}

// IngestionScheduler runs a Cycle on a fixed interval until its context is cancelled.
// A failing or panicking cycle is logged and counted; the loop keeps going.
type IngestionScheduler struct {
	logger   ports.Logger
	cycle    Cycle
	interval time.Duration

	cycleMu sync.Mutex // Serialises cycles between Run and manual triggers
	mu      sync.Mutex // Guards stats and running
	stats   SchedulerStats
	running bool
}

// NewIngestionScheduler creates a scheduler. A non-positive interval uses DefaultSchedulerInterval.
func NewIngestionScheduler(logger ports.Logger, cycle Cycle, interval time.Duration) (*IngestionScheduler, error) {
	if logger == nil || cycle == nil {
		return nil, fmt.Errorf("missing required dependencies for IngestionScheduler")
	}
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	return &IngestionScheduler{logger: logger, cycle: cycle, interval: interval}, nil
}

// Interval returns the configured wait between cycles.
func (s *IngestionScheduler) Interval() time.Duration {
	return s.interval
}

// Run executes a cycle immediately, then once per interval. It returns when ctx is cancelled,
// either before a cycle starts or during the wait. A cycle already in flight runs to completion.
func (s *IngestionScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running: %w", ports.ErrInvalidRequest)
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info(ctx, "Ingestion scheduler started", map[string]interface{}{"interval": s.interval})

	for {
		if ctx.Err() != nil {
			s.logger.Info(ctx, "Ingestion scheduler stopped")
			return nil
		}

		_, _ = s.RunOnce(context.WithoutCancel(ctx))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info(ctx, "Ingestion scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle with panic recovery and records the outcome.
// Concurrent callers are serialised.
func (s *IngestionScheduler) RunOnce(ctx context.Context) (report CycleReport, err error) {
	op := "RunOnce"
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: cycle panicked: %v: %w", op, r, ports.ErrTransientIngestion)
			s.logger.Error(ctx, err, "Ingestion cycle panicked", map[string]interface{}{"stack": string(debug.Stack())})
		}
		s.record(started, err)
	}()

	report, err = s.runCycle(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Ingestion cycle failed", map[string]interface{}{"duration": time.Since(started)})
		return report, err
	}
	s.logger.Debug(ctx, "Ingestion cycle finished", map[string]interface{}{"duration": time.Since(started)})
	return report, nil
}

func (s *IngestionScheduler) runCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.cycle.FetchRates(ctx)
}

func (s *IngestionScheduler) record(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Cycles++
	s.stats.LastRun = at
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
}

// Stats returns a snapshot of the cycle counters.
func (s *IngestionScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
