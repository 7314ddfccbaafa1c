package app

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/domain"
)

// ChangeWindow is the trailing window whose oldest sample is the comparison baseline.
const ChangeWindow = 24 * time.Hour

// DefaultThresholdPercent is used when no threshold is configured.
var DefaultThresholdPercent = decimal.NewFromFloat(5.0)

var hundred = decimal.NewFromInt(100)

// ChangeDetector decides whether a new sample moved far enough from its baseline to be reported.
type ChangeDetector struct {
	threshold decimal.Decimal
}

// NewChangeDetector creates a detector. A negative threshold falls back to the default.
func NewChangeDetector(thresholdPercent decimal.Decimal) *ChangeDetector {
	if thresholdPercent.IsNegative() {
		thresholdPercent = DefaultThresholdPercent
	}
	return &ChangeDetector{threshold: thresholdPercent}
}

// Threshold returns the configured threshold in percent.
func (d *ChangeDetector) Threshold() decimal.Decimal {
	return d.threshold
}

// PercentageChange returns (newPrice-oldPrice)/oldPrice*100, or zero when oldPrice is zero.
func PercentageChange(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).Div(oldPrice).Mul(hundred)
}

// Evaluate compares sample with baseline. It reports an event only when a baseline for the same
// symbol exists and the absolute change is strictly greater than the threshold.
func (d *ChangeDetector) Evaluate(sample domain.RateSample, baseline domain.RateSample, hasBaseline bool) (domain.RateChangeEvent, bool) {
	if !hasBaseline || baseline.Symbol != sample.Symbol {
		return domain.RateChangeEvent{}, false
	}

	pct := PercentageChange(baseline.Price, sample.Price)
	if !pct.Abs().GreaterThan(d.threshold) {
		return domain.RateChangeEvent{}, false
	}

	return domain.RateChangeEvent{
		Symbol:           sample.Symbol,
		OldPrice:         baseline.Price,
		NewPrice:         sample.Price,
		PercentageChange: pct,
		Timestamp:        sample.ObservedAt,
	}, true
}
