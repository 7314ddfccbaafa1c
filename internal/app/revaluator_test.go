package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

func seedPosition(t *testing.T, store *mockPositionStore, symbol, qty, entry string, side domain.Side) *domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(symbol, dec(qty), dec(entry), side, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), pos))
	return pos
}

func TestPositionRevaluator_HandleRateChanged(t *testing.T) {
	store := newMockPositionStore()
	bus := eventbus.New(eventbus.Options{})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	revaluator, err := NewPositionRevaluator(&mockLogger{}, store, bus, func() time.Time { return at })
	require.NoError(t, err)
	revaluator.Register()

	results := &recorder[domain.RevaluationResult]{}
	bus.PositionRevalued.Subscribe("recorder", results.handle)

	long := seedPosition(t, store, "BTCUSDT", "0.5", "60000", domain.Buy)
	short := seedPosition(t, store, "BTCUSDT", "2", "61000", domain.Sell)
	other := seedPosition(t, store, "ETHUSDT", "1", "3000", domain.Buy)
	closed := seedPosition(t, store, "BTCUSDT", "1", "50000", domain.Buy)
	_, err = store.ClosePosition(context.Background(), closed.ID, at)
	require.NoError(t, err)

	err = bus.RateChanged.Publish(context.Background(), domain.RateChangeEvent{
		Symbol:   "BTCUSDT",
		OldPrice: dec("60000"),
		NewPrice: dec("66000"),
	})
	require.NoError(t, err)

	got := results.all()
	require.Len(t, got, 2, "only open BTCUSDT positions are revalued")
	byID := map[string]domain.RevaluationResult{}
	for _, r := range got {
		byID[r.PositionID] = r
	}
	assert.NotContains(t, byID, other.ID)
	assert.NotContains(t, byID, closed.ID)

	assert.True(t, byID[long.ID].ProfitLoss.Equal(dec("3000")))
	assert.True(t, byID[short.ID].ProfitLoss.Equal(dec("-10000")))
	assert.True(t, byID[short.ID].CurrentPrice.Equal(dec("66000")))
	assert.Equal(t, domain.Sell, byID[short.ID].Side)
	assert.Equal(t, at, byID[long.ID].CalculatedAt)
}

func TestPositionRevaluator_NoOpenPositions(t *testing.T) {
	store := newMockPositionStore()
	bus := eventbus.New(eventbus.Options{})
	revaluator, err := NewPositionRevaluator(&mockLogger{}, store, bus, nil)
	require.NoError(t, err)

	results := &recorder[domain.RevaluationResult]{}
	bus.PositionRevalued.Subscribe("recorder", results.handle)

	err = revaluator.HandleRateChanged(context.Background(), domain.RateChangeEvent{Symbol: "BTCUSDT", NewPrice: dec("1")})
	require.NoError(t, err)
	assert.Empty(t, results.all())
}

func TestPositionRevaluator_StoreFailure(t *testing.T) {
	store := newMockPositionStore()
	store.readErr = ports.ErrQueryFailed
	bus := eventbus.New(eventbus.Options{})
	revaluator, err := NewPositionRevaluator(&mockLogger{}, store, bus, nil)
	require.NoError(t, err)

	results := &recorder[domain.RevaluationResult]{}
	bus.PositionRevalued.Subscribe("recorder", results.handle)

	err = revaluator.HandleRateChanged(context.Background(), domain.RateChangeEvent{Symbol: "BTCUSDT", NewPrice: dec("1")})
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
	assert.Empty(t, results.all())
}

func TestPositionRevaluator_PerPositionIsolation(t *testing.T) {
	store := newMockPositionStore()
	bus := eventbus.New(eventbus.Options{})
	revaluator, err := NewPositionRevaluator(&mockLogger{}, store, bus, nil)
	require.NoError(t, err)

	first := seedPosition(t, store, "BTCUSDT", "1", "100", domain.Buy)
	second := seedPosition(t, store, "BTCUSDT", "1", "100", domain.Buy)
	third := seedPosition(t, store, "BTCUSDT", "1", "100", domain.Buy)

	sinkErr := errors.New("sink rejected")
	var seen []string
	bus.PositionRevalued.Subscribe("flaky", func(ctx context.Context, r domain.RevaluationResult) error {
		seen = append(seen, r.PositionID)
		if r.PositionID == second.ID {
			return sinkErr
		}
		return nil
	})

	err = revaluator.HandleRateChanged(context.Background(), domain.RateChangeEvent{Symbol: "BTCUSDT", NewPrice: dec("110")})
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.ErrorIs(t, err, ports.ErrDispatch)
	assert.Contains(t, err.Error(), second.ID)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, seen, "remaining positions still processed")
}

func TestPositionRevaluator_RecomputationIsIdempotent(t *testing.T) {
	store := newMockPositionStore()
	bus := eventbus.New(eventbus.Options{})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	revaluator, err := NewPositionRevaluator(&mockLogger{}, store, bus, func() time.Time { return at })
	require.NoError(t, err)
	seedPosition(t, store, "BTCUSDT", "3", "10", domain.Sell)

	results := &recorder[domain.RevaluationResult]{}
	bus.PositionRevalued.Subscribe("recorder", results.handle)

	event := domain.RateChangeEvent{Symbol: "BTCUSDT", NewPrice: dec("12")}
	require.NoError(t, revaluator.HandleRateChanged(context.Background(), event))
	require.NoError(t, revaluator.HandleRateChanged(context.Background(), event))

	got := results.all()
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
	assert.True(t, got[0].ProfitLoss.Equal(dec("-6")))
}
