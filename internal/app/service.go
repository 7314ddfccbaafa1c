package app

import (
	"context"
	"fmt"
	"sync"

	"cryptoRateWatch/config"
	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

// WatchService wires the ingestion pipeline together and runs its background work:
// the position seed load, the ingestion scheduler and the retention job.
type WatchService struct {
	cfg    *config.Config
	logger ports.Logger
	bus    *eventbus.Bus

	Rates      *RateService
	Positions  *PositionService
	Revaluator *PositionRevaluator
	Scheduler  *IngestionScheduler
	retention  *RetentionJob
}

// NewWatchService creates the application services and subscribes the revaluator to the bus.
func NewWatchService(
	cfg *config.Config,
	logger ports.Logger,
	provider ports.MarketDataProvider,
	history ports.RateHistoryStore,
	positions ports.PositionStore,
	bus *eventbus.Bus,
) (*WatchService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || provider == nil || history == nil || positions == nil || bus == nil {
		return nil, fmt.Errorf("missing required dependencies for WatchService")
	}

	// Validate config values needed by service
	if cfg.ThresholdPercent.IsNegative() {
		return nil, fmt.Errorf("configuration ThresholdPercent cannot be negative")
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("configuration SchedulerInterval must be positive")
	}

	rates, err := NewRateService(logger, provider, history, bus, NewChangeDetector(cfg.ThresholdPercent), nil)
	if err != nil {
		return nil, err
	}
	positionService, err := NewPositionService(logger, positions, nil)
	if err != nil {
		return nil, err
	}
	revaluator, err := NewPositionRevaluator(logger, positions, bus, nil)
	if err != nil {
		return nil, err
	}
	scheduler, err := NewIngestionScheduler(logger, rates, cfg.SchedulerInterval)
	if err != nil {
		return nil, err
	}

	var retention *RetentionJob
	if cfg.RateRetention > 0 {
		retention, err = NewRetentionJob(logger, history, cfg.RateRetention, nil)
		if err != nil {
			return nil, err
		}
	}

	revaluator.Register()

	return &WatchService{
		cfg:        cfg,
		logger:     logger,
		bus:        bus,
		Rates:      rates,
		Positions:  positionService,
		Revaluator: revaluator,
		Scheduler:  scheduler,
		retention:  retention,
	}, nil
}

// TriggerFetch runs one ingestion cycle outside the schedule.
func (s *WatchService) TriggerFetch(ctx context.Context) (CycleReport, error) {
	return s.Scheduler.RunOnce(ctx)
}

// RecentRates returns the latest stored samples for symbol, newest first.
func (s *WatchService) RecentRates(ctx context.Context, symbol string) ([]domain.RateSample, error) {
	return s.Rates.RecentRates(ctx, symbol)
}

// Start loads the position seed file, starts the retention job and, when enabled, the ingestion
// scheduler. It blocks until ctx is cancelled and background work has stopped.
func (s *WatchService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Watch Service...", map[string]interface{}{
		"threshold":        s.cfg.ThresholdPercent.String(),
		"schedulerEnabled": s.cfg.SchedulerEnabled,
		"interval":         s.cfg.SchedulerInterval,
		"dispatchMode":     s.cfg.DispatchMode.String(),
	})

	// 1. Seed positions
	if s.cfg.PositionsCSVPath != "" {
		if _, err := s.Positions.LoadPositionsFile(ctx, s.cfg.PositionsCSVPath); err != nil {
			s.logger.Error(ctx, err, "Failed to load position seed file", map[string]interface{}{"path": s.cfg.PositionsCSVPath})
			return fmt.Errorf("failed to load positions: %w", err)
		}
	}

	// 2. Retention
	if s.retention != nil {
		if err := s.retention.Start(ctx, s.cfg.RetentionSchedule); err != nil {
			return err
		}
		defer s.retention.Stop()
	}

	// 3. Scheduler
	var wg sync.WaitGroup
	if s.cfg.SchedulerEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Scheduler.Run(ctx); err != nil {
				s.logger.Error(ctx, err, "Ingestion scheduler exited with error")
			}
		}()
	} else {
		s.logger.Info(ctx, "Ingestion scheduler disabled; use the manual fetch endpoint")
	}

	<-ctx.Done()
	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
	wg.Wait()

	s.logger.Info(ctx, "Watch Service stopped.")
	return nil
}
