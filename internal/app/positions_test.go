package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

func newPositionService(t *testing.T) (*PositionService, *mockPositionStore, *fakeClock) {
	t.Helper()
	store := newMockPositionStore()
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewPositionService(&mockLogger{}, store, clock.Now)
	require.NoError(t, err)
	return svc, store, clock
}

func TestPositionService_OpenPosition(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		qty     string
		entry   string
		side    domain.Side
		wantErr error
	}{
		{name: "valid buy", symbol: "BTCUSDT", qty: "0.5", entry: "60000", side: domain.Buy},
		{name: "valid sell", symbol: "ETHUSDT", qty: "2", entry: "3000", side: domain.Sell},
		{name: "empty symbol", symbol: " ", qty: "1", entry: "1", side: domain.Buy, wantErr: ports.ErrValidation},
		{name: "negative quantity", symbol: "BTCUSDT", qty: "-1", entry: "1", side: domain.Buy, wantErr: ports.ErrValidation},
		{name: "unknown side", symbol: "BTCUSDT", qty: "1", entry: "1", side: domain.Side("HOLD"), wantErr: ports.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, clock := newPositionService(t)
			pos, err := svc.OpenPosition(context.Background(), tt.symbol, dec(tt.qty), dec(tt.entry), tt.side)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, pos)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, pos.ID)
			assert.Equal(t, domain.StatusOpen, pos.Status)
			assert.Equal(t, clock.Now(), pos.CreatedAt)

			stored, err := store.FindByID(context.Background(), pos.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, stored.Symbol)
		})
	}
}

func TestPositionService_ClosePosition(t *testing.T) {
	svc, _, clock := newPositionService(t)
	ctx := context.Background()

	pos, err := svc.OpenPosition(ctx, "BTCUSDT", dec("1"), dec("100"), domain.Buy)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	closed, err := svc.ClosePosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = svc.ClosePosition(ctx, pos.ID)
	assert.ErrorIs(t, err, ports.ErrAlreadyClosed)
	assert.False(t, closed)

	closed, err = svc.ClosePosition(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, closed)

	open, err := svc.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPositionService_ProfitLoss(t *testing.T) {
	svc, _, _ := newPositionService(t)
	ctx := context.Background()

	pos, err := svc.OpenPosition(ctx, "ETHUSDT", dec("2"), dec("3000"), domain.Sell)
	require.NoError(t, err)

	result, err := svc.ProfitLoss(ctx, pos.ID, dec("2500"))
	require.NoError(t, err)
	assert.True(t, result.ProfitLoss.Equal(dec("1000")))
	assert.Equal(t, pos.ID, result.PositionID)

	_, err = svc.ProfitLoss(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestPositionService_LoadPositions(t *testing.T) {
	svc, store, _ := newPositionService(t)
	input := strings.Join([]string{
		"instrument,quantity,entry_price,side",
		"BTCUSDT,0.5,60000,buy",
		"ETHUSDT,abc,3000,BUY",
		"SOLUSDT,10,150,HOLD",
		",1,1,BUY",
		"ETHUSDT,2,3000,SELL",
		"XRPUSDT,1",
	}, "\n")

	report, err := svc.LoadPositions(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)

	var lines []int
	for _, skipped := range report.Skipped {
		assert.ErrorIs(t, skipped, ports.ErrValidation)
		lines = append(lines, skipped.Line)
	}
	assert.ElementsMatch(t, []int{3, 4, 5, 7}, lines)

	open, err := store.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, domain.Buy, open[0].Side)
	assert.Equal(t, domain.Sell, open[1].Side)
}

func TestPositionService_LoadPositionsFile(t *testing.T) {
	svc, store, _ := newPositionService(t)
	ctx := context.Background()

	report, err := svc.LoadPositionsFile(ctx, filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Zero(t, report.Loaded)

	path := filepath.Join(t.TempDir(), "positions.csv")
	require.NoError(t, os.WriteFile(path, []byte("instrument,quantity,entry_price,side\nBTCUSDT,1,100,SELL\n"), 0o600))
	report, err = svc.LoadPositionsFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestPositionService_LoadPositions_BadHeader(t *testing.T) {
	svc, _, _ := newPositionService(t)
	_, err := svc.LoadPositions(context.Background(), strings.NewReader("a,b\n1,2\n"))
	assert.ErrorIs(t, err, ports.ErrValidation)
}
