package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

func TestNewRetentionJob(t *testing.T) {
	_, err := NewRetentionJob(&mockLogger{}, newMockHistory(), 0, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	job, err := NewRetentionJob(&mockLogger{}, newMockHistory(), time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, ChangeWindow, job.retention, "never prunes inside the change window")
}

func TestRetentionJob_Run(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	history := newMockHistory()
	ctx := context.Background()
	for _, age := range []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, 2 * 24 * time.Hour, time.Hour} {
		require.NoError(t, history.Append(ctx, domain.RateSample{Symbol: "BTCUSDT", Price: dec("1"), ObservedAt: now.Add(-age)}))
	}

	job, err := NewRetentionJob(&mockLogger{}, history, 7*24*time.Hour, func() time.Time { return now })
	require.NoError(t, err)

	deleted, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 2, history.count("BTCUSDT"))
	assert.Equal(t, now.Add(-7*24*time.Hour), history.prunedFrom)
}

func TestRetentionJob_RunError(t *testing.T) {
	history := newMockHistory()
	history.pruneErr = ports.ErrDeleteFailed
	job, err := NewRetentionJob(&mockLogger{}, history, 48*time.Hour, nil)
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrDeleteFailed)
}

func TestRetentionJob_Start(t *testing.T) {
	job, err := NewRetentionJob(&mockLogger{}, newMockHistory(), 48*time.Hour, nil)
	require.NoError(t, err)

	err = job.Start(context.Background(), "not a schedule")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	require.NoError(t, job.Start(context.Background(), "@every 1h"))
	job.Stop()
}
