package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

// RecentRatesLimit is the number of samples returned by RecentRates.
const RecentRatesLimit = 10

// Cycle is one unit of scheduled work.
type Cycle interface {
	FetchRates(ctx context.Context) (CycleReport, error)
}

// CycleReport summarises one ingestion cycle.
type CycleReport struct {
	Quotes    int `json:"quotes"`    // Quotes returned by the market-data provider
	Stored    int `json:"stored"`    // Samples appended to history
	Published int `json:"published"` // RateChanged events published
	Failed    int `json:"failed"`    // Instruments whose processing failed
}

// RateService runs the ingestion cycle: fetch, compare against the 24h baseline, publish, store.
type RateService struct {
	logger   ports.Logger
	provider ports.MarketDataProvider
	history  ports.RateHistoryStore
	bus      *eventbus.Bus
	detector *ChangeDetector
	now      func() time.Time
}

// NewRateService creates a RateService. now may be nil, in which case time.Now is used.
func NewRateService(
	logger ports.Logger,
	provider ports.MarketDataProvider,
	history ports.RateHistoryStore,
	bus *eventbus.Bus,
	detector *ChangeDetector,
	now func() time.Time,
) (*RateService, error) {
	if logger == nil || provider == nil || history == nil || bus == nil || detector == nil {
		return nil, fmt.Errorf("missing required dependencies for RateService")
	}
	if now == nil {
		now = time.Now
	}
	return &RateService{
		logger:   logger,
		provider: provider,
		history:  history,
		bus:      bus,
		detector: detector,
		now:      now,
	}, nil
}

// FetchRates performs one ingestion cycle. A provider failure fails the whole cycle; failures for a
// single instrument are collected and the remaining instruments are still processed. Once quotes
// are fetched every one of them is processed; ctx is not checked between instruments.
func (s *RateService) FetchRates(ctx context.Context) (CycleReport, error) {
	op := "FetchRates"
	var report CycleReport

	quotes, err := s.provider.FetchLatestQuotes(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: fetch quotes: %w: %w", op, ports.ErrTransientIngestion, err)
	}
	report.Quotes = len(quotes)

	observedAt := s.now().UTC()
	since := observedAt.Add(-ChangeWindow)

	var errs []error
	for _, q := range quotes {
		published, err := s.processQuote(ctx, q, observedAt, since)
		if published {
			report.Published++
		}
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			s.logger.Warn(ctx, op+": instrument skipped", map[string]interface{}{"symbol": q.Symbol, "error": err.Error()})
			continue
		}
		report.Stored++
	}

	s.logger.Info(ctx, op+" completed", map[string]interface{}{
		"quotes":    report.Quotes,
		"stored":    report.Stored,
		"published": report.Published,
		"failed":    report.Failed,
	})

	if len(errs) > 0 {
		return report, fmt.Errorf("%s: %w: %w", op, ports.ErrTransientIngestion, errors.Join(errs...))
	}
	return report, nil
}

func (s *RateService) processQuote(ctx context.Context, q domain.Quote, observedAt, since time.Time) (bool, error) {
	sample, err := domain.NewRateSample(q.Symbol, q.Price, observedAt)
	if err != nil {
		return false, err
	}

	baseline, ok, err := s.history.OldestSince(ctx, sample.Symbol, since)
	if err != nil {
		return false, fmt.Errorf("baseline lookup for %s: %w", sample.Symbol, err)
	}

	published := false
	if event, significant := s.detector.Evaluate(sample, baseline, ok); significant {
		s.logger.Info(ctx, "Significant rate change detected", map[string]interface{}{
			"symbol":           event.Symbol,
			"oldPrice":         event.OldPrice.String(),
			"newPrice":         event.NewPrice.String(),
			"percentageChange": event.PercentageChange.StringFixed(4),
		})
		if err := s.bus.RateChanged.Publish(ctx, event); err != nil {
			s.logger.Error(ctx, err, "RateChanged dispatch reported subscriber failures", map[string]interface{}{"symbol": event.Symbol})
		}
		published = true
	}

	if err := s.history.Append(ctx, sample); err != nil {
		return published, fmt.Errorf("store sample for %s: %w", sample.Symbol, err)
	}
	return published, nil
}

// RecentRates returns the latest samples for symbol, newest first.
func (s *RateService) RecentRates(ctx context.Context, symbol string) ([]domain.RateSample, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol must not be empty: %w", ports.ErrValidation)
	}
	return s.history.Recent(ctx, symbol, RecentRatesLimit)
}
