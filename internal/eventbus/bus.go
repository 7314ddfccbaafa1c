// Package eventbus provides the in-process event fan-out between rate ingestion and its consumers.
package eventbus

import "cryptoRateWatch/internal/domain"

// Topic names.
const (
	TopicRateChanged      = "rate_changed"
	TopicPositionRevalued = "position_revalued"
)

// Bus groups one typed topic per event variant.
type Bus struct {
	RateChanged      *Topic[domain.RateChangeEvent]
	PositionRevalued *Topic[domain.RevaluationResult]
}

// New creates a bus whose topics share the same dispatch options.
func New(opts Options) *Bus {
	return &Bus{
		RateChanged:      NewTopic[domain.RateChangeEvent](TopicRateChanged, opts),
		PositionRevalued: NewTopic[domain.RevaluationResult](TopicPositionRevalued, opts),
	}
}
