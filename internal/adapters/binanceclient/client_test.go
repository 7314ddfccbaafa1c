package binanceclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRateWatch/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc, symbols []string, quote string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Symbols: symbols, QuoteAsset: quote, Logger: nopLogger{}})
	require.NoError(t, err)
	return c
}

const pricesBody = `[
	{"symbol":"ETHUSDT","price":"3012.55","time":1714560000000},
	{"symbol":"BTCUSDT","price":"64250.10","time":1714560000000},
	{"symbol":"BTCBUSD","price":"64249.00","time":1714560000000}
]`

func TestClient_FetchLatestQuotes_FiltersBySymbols(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pricesBody))
	}, []string{"btcusdt"}, "")

	quotes, err := c.FetchLatestQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "BTCUSDT", quotes[0].Symbol)
	assert.Equal(t, "64250.1", quotes[0].Price.String())
}

func TestClient_FetchLatestQuotes_FiltersByQuoteAsset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pricesBody))
	}, nil, "usdt")

	quotes, err := c.FetchLatestQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTCUSDT", quotes[0].Symbol, "sorted by symbol")
	assert.Equal(t, "ETHUSDT", quotes[1].Symbol)
}

func TestClient_FetchLatestQuotes_BadPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"n/a","time":1}]`))
	}, nil, "USDT")

	_, err := c.FetchLatestQuotes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDecodeFailed)
}

func TestClient_FetchLatestQuotes_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}, nil, "USDT")

	_, err := c.FetchLatestQuotes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestNew_RequiresSymbolsOrQuoteAsset(t *testing.T) {
	_, err := New(Config{Logger: nopLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{QuoteAsset: "USDT"})
	assert.Error(t, err)
}
