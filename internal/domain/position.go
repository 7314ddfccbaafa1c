package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position represents an open or closed holding in a single instrument.
// Profit/loss is never stored; it is derived from a current price via ProfitLoss.
type Position struct {
	ID         string          // Opaque unique identifier (UUID)
	Symbol     string          // Instrument symbol (e.g., "BTCUSDT")
	Quantity   decimal.Decimal // Size of the position; direction is carried by Side
	EntryPrice decimal.Decimal // Price at which the position was entered
	Side       Side            // BUY or SELL
	Status     PositionStatus  // open or closed
	CreatedAt  time.Time       // When the position was opened (UTC)
	ClosedAt   *time.Time      // Set if and only if Status is closed
}

// NewPosition validates input and returns a new open position with a fresh ID.
func NewPosition(symbol string, quantity, entryPrice decimal.Decimal, side Side, now time.Time) (*Position, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("position symbol must not be empty: %w", ErrValidation)
	}
	if side != Buy && side != Sell {
		return nil, fmt.Errorf("unknown side %q: %w", side, ErrValidation)
	}
	if quantity.IsNegative() {
		return nil, fmt.Errorf("quantity %s must not be negative: %w", quantity, ErrValidation)
	}
	if entryPrice.IsNegative() {
		return nil, fmt.Errorf("entry price %s must not be negative: %w", entryPrice, ErrValidation)
	}
	return &Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		Side:       side,
		Status:     StatusOpen,
		CreatedAt:  now.UTC(),
	}, nil
}

// RestorePosition rebuilds a persisted position, checking the closedAt/status invariant.
func RestorePosition(id, symbol string, quantity, entryPrice decimal.Decimal, side Side, status PositionStatus, createdAt time.Time, closedAt *time.Time) (*Position, error) {
	if id == "" || symbol == "" {
		return nil, fmt.Errorf("persisted position is missing id or symbol: %w", ErrValidation)
	}
	if side != Buy && side != Sell {
		return nil, fmt.Errorf("persisted position %s has unknown side %q: %w", id, side, ErrValidation)
	}
	switch status {
	case StatusOpen:
		if closedAt != nil {
			return nil, fmt.Errorf("open position %s has a close time: %w", id, ErrValidation)
		}
	case StatusClosed:
		if closedAt == nil {
			return nil, fmt.Errorf("closed position %s has no close time: %w", id, ErrValidation)
		}
	default:
		return nil, fmt.Errorf("persisted position %s has unknown status %q: %w", id, status, ErrValidation)
	}
	return &Position{
		ID:         id,
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		Side:       side,
		Status:     status,
		CreatedAt:  createdAt,
		ClosedAt:   closedAt,
	}, nil
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Close transitions the position from open to closed. Closing twice fails with ErrAlreadyClosed
// and leaves ClosedAt untouched.
func (p *Position) Close(now time.Time) error {
	if p.Status == StatusClosed {
		return fmt.Errorf("close position %s: %w", p.ID, ErrAlreadyClosed)
	}
	closedAt := now.UTC()
	p.Status = StatusClosed
	p.ClosedAt = &closedAt
	return nil
}

// ProfitLoss returns quantity * (currentPrice - entryPrice) * side multiplier.
func (p *Position) ProfitLoss(currentPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.
		Mul(currentPrice.Sub(p.EntryPrice)).
		Mul(decimal.NewFromInt(p.Side.Multiplier()))
}

// Revalue builds the RevaluationResult for this position at currentPrice.
func (p *Position) Revalue(currentPrice decimal.Decimal, at time.Time) RevaluationResult {
	return RevaluationResult{
		PositionID:   p.ID,
		Symbol:       p.Symbol,
		Quantity:     p.Quantity,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: currentPrice,
		Side:         p.Side,
		ProfitLoss:   p.ProfitLoss(currentPrice),
		CalculatedAt: at.UTC(),
	}
}
