// Package sink contains downstream consumers of rate-change and revaluation events.
package sink

import (
	"context"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

// LogSink writes every event it receives to the application log.
type LogSink struct {
	logger ports.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger ports.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Register subscribes the sink to both topics of bus.
func (s *LogSink) Register(bus *eventbus.Bus) {
	bus.RateChanged.Subscribe("log-sink", s.HandleRateChanged)
	bus.PositionRevalued.Subscribe("log-sink", s.HandleRevaluation)
}

// HandleRateChanged logs a significant rate change.
func (s *LogSink) HandleRateChanged(ctx context.Context, ev domain.RateChangeEvent) error {
	s.logger.Info(ctx, "Rate changed", map[string]interface{}{
		"symbol":           ev.Symbol,
		"oldPrice":         ev.OldPrice.String(),
		"newPrice":         ev.NewPrice.String(),
		"percentageChange": ev.PercentageChange.StringFixed(2),
		"timestamp":        ev.Timestamp,
	})
	return nil
}

// HandleRevaluation logs a recalculated position value.
func (s *LogSink) HandleRevaluation(ctx context.Context, r domain.RevaluationResult) error {
	s.logger.Info(ctx, "Position revalued", map[string]interface{}{
		"positionID":   r.PositionID,
		"symbol":       r.Symbol,
		"side":         r.Side,
		"quantity":     r.Quantity.String(),
		"entryPrice":   r.EntryPrice.String(),
		"currentPrice": r.CurrentPrice.String(),
		"profitLoss":   r.ProfitLoss.String(),
		"calculatedAt": r.CalculatedAt,
	})
	return nil
}
