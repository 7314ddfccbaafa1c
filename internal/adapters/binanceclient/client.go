package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.MarketDataProvider interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	symbols       map[string]struct{} // Empty means every symbol with quoteAsset
	quoteAsset    string
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string   // Overrides the production/testnet URL (used by tests)
	Symbols    []string // Symbols to track; empty tracks every symbol quoted in QuoteAsset
	QuoteAsset string   // e.g. "USDT"
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Only public market-data endpoints are used, so
// API keys are optional.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if len(cfg.Symbols) == 0 && cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("either symbols or a quote asset must be configured: %w", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "symbols": len(cfg.Symbols), "quoteAsset": cfg.QuoteAsset})

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		symbols:       symbols,
		quoteAsset:    strings.ToUpper(cfg.QuoteAsset),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1001, -1016: // Disconnected / service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1121: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, decoding)
	var finalErr error
	switch {
	case errors.Is(err, ports.ErrDecodeFailed):
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// FetchLatestQuotes retrieves the latest price of every tracked symbol, sorted by symbol.
func (c *Client) FetchLatestQuotes(ctx context.Context) ([]domain.Quote, error) {
	op := "FetchLatestQuotes"
	prices, err := c.futuresClient.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	quotes := make([]domain.Quote, 0, len(prices))
	for _, p := range prices {
		if p == nil || !c.tracks(p.Symbol) {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			parseErr := fmt.Errorf("could not parse price '%s' for %s: %w: %w", p.Price, p.Symbol, ports.ErrDecodeFailed, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		quotes = append(quotes, domain.Quote{Symbol: p.Symbol, Price: price})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"received": len(prices), "tracked": len(quotes)})
	return quotes, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

func (c *Client) tracks(symbol string) bool {
	if len(c.symbols) > 0 {
		_, ok := c.symbols[symbol]
		return ok
	}
	return strings.HasSuffix(symbol, c.quoteAsset)
}
