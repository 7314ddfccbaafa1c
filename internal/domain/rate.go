package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateSample is a single observed price for an instrument. It is never mutated once created.
type RateSample struct {
	Symbol     string          // Instrument symbol (e.g., "BTCUSDT")
	Price      decimal.Decimal // Observed price
	ObservedAt time.Time       // UTC observation time
}

// NewRateSample validates and builds a RateSample. The timestamp is normalised to UTC.
func NewRateSample(symbol string, price decimal.Decimal, observedAt time.Time) (RateSample, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return RateSample{}, fmt.Errorf("rate sample symbol must not be empty: %w", ErrValidation)
	}
	if observedAt.IsZero() {
		return RateSample{}, fmt.Errorf("rate sample for %s has no observation time: %w", symbol, ErrValidation)
	}
	return RateSample{Symbol: symbol, Price: price, ObservedAt: observedAt.UTC()}, nil
}

// Quote is a latest (symbol, price) pair returned by a market-data source.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
}
