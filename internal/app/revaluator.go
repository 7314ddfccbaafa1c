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

// RevaluatorSubscriber is the subscription name used on the RateChanged topic.
const RevaluatorSubscriber = "position-revaluator"

// PositionRevaluator recomputes profit/loss for every open position of an instrument whose
// rate changed and publishes one RevaluationResult per position.
type PositionRevaluator struct {
	logger    ports.Logger
	positions ports.PositionStore
	bus       *eventbus.Bus
	now       func() time.Time
}

// NewPositionRevaluator creates a revaluator. now may be nil, in which case time.Now is used.
func NewPositionRevaluator(logger ports.Logger, positions ports.PositionStore, bus *eventbus.Bus, now func() time.Time) (*PositionRevaluator, error) {
	if logger == nil || positions == nil || bus == nil {
		return nil, fmt.Errorf("missing required dependencies for PositionRevaluator")
	}
	if now == nil {
		now = time.Now
	}
	return &PositionRevaluator{logger: logger, positions: positions, bus: bus, now: now}, nil
}

// Register subscribes the revaluator to RateChanged events.
func (r *PositionRevaluator) Register() {
	r.bus.RateChanged.Subscribe(RevaluatorSubscriber, r.HandleRateChanged)
}

// HandleRateChanged revalues the open positions for event.Symbol at event.NewPrice.
// A failed publish for one position does not stop the others; all failures are returned joined.
func (r *PositionRevaluator) HandleRateChanged(ctx context.Context, event domain.RateChangeEvent) error {
	op := "HandleRateChanged"
	open, err := r.positions.OpenPositionsFor(ctx, event.Symbol)
	if err != nil {
		return fmt.Errorf("%s: load open positions for %s: %w", op, event.Symbol, err)
	}
	if len(open) == 0 {
		r.logger.Debug(ctx, op+": no open positions", map[string]interface{}{"symbol": event.Symbol})
		return nil
	}

	var errs []error
	for _, pos := range open {
		result := pos.Revalue(event.NewPrice, r.now())
		if err := r.bus.PositionRevalued.Publish(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("position %s: %w", pos.ID, err))
		}
	}

	r.logger.Debug(ctx, op+" completed", map[string]interface{}{
		"symbol":    event.Symbol,
		"positions": len(open),
		"failed":    len(errs),
	})
	return errors.Join(errs...)
}
