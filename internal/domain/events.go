package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateChangeEvent is published when an instrument's price moved beyond the configured threshold
// relative to the oldest sample in the trailing window.
type RateChangeEvent struct {
	Symbol           string          `json:"symbol"`
	OldPrice         decimal.Decimal `json:"old_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
	Timestamp        time.Time       `json:"timestamp"`
}

// RevaluationResult carries the recomputed profit/loss of one open position at a new price.
type RevaluationResult struct {
	PositionID   string          `json:"position_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Side         Side            `json:"side"`
	ProfitLoss   decimal.Decimal `json:"profit_loss"`
	CalculatedAt time.Time       `json:"calculated_at"`
}
