package ports

import (
	"context"

	"cryptoRateWatch/internal/domain"
)

// MarketDataProvider fetches the latest quotes from an external market-data source.
// Any error (transport, decoding) means the current ingestion cycle failed.
type MarketDataProvider interface {
	FetchLatestQuotes(ctx context.Context) ([]domain.Quote, error)
}
