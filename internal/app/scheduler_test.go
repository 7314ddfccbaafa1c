package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

// scriptedCycle fails or panics on the configured call numbers (1-based).
type scriptedCycle struct {
	mu       sync.Mutex
	calls    int
	failOn   map[int]error
	panicOn  map[int]bool
	onCall   func(n int)
	inFlight int
	maxSeen  int
}

func (c *scriptedCycle) FetchRates(ctx context.Context) (CycleReport, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.inFlight++
	if c.inFlight > c.maxSeen {
		c.maxSeen = c.inFlight
	}
	onCall := c.onCall
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if onCall != nil {
		onCall(n)
	}
	if c.panicOn[n] {
		panic("boom")
	}
	if err := c.failOn[n]; err != nil {
		return CycleReport{}, err
	}
	return CycleReport{Quotes: 1, Stored: 1}, nil
}

func (c *scriptedCycle) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNewIngestionScheduler(t *testing.T) {
	s, err := NewIngestionScheduler(&mockLogger{}, &scriptedCycle{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedulerInterval, s.Interval())

	_, err = NewIngestionScheduler(&mockLogger{}, nil, time.Second)
	assert.Error(t, err)
}

func TestIngestionScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	cycle := &scriptedCycle{}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return cycle.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, s.Stats().Cycles, 3)
}

func TestIngestionScheduler_FailuresAndPanicsDoNotStopLoop(t *testing.T) {
	logger := &mockLogger{}
	cycle := &scriptedCycle{
		failOn:  map[int]error{1: ports.ErrExchangeUnavailable},
		panicOn: map[int]bool{2: true},
	}
	s, err := NewIngestionScheduler(logger, cycle, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return cycle.callCount() >= 4 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Cycles, 4)
	assert.Equal(t, 2, stats.Failures)
	assert.Contains(t, logger.errors(), "Ingestion cycle failed")
	assert.Contains(t, logger.errors(), "Ingestion cycle panicked")
}

func TestIngestionScheduler_CancelDuringWait(t *testing.T) {
	cycle := &scriptedCycle{}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return cycle.callCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop during the wait")
	}
	assert.Equal(t, 1, cycle.callCount())
}

func TestIngestionScheduler_CancelledBeforeFirstCycle(t *testing.T) {
	cycle := &scriptedCycle{}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, cycle.callCount())
}

func TestIngestionScheduler_RejectsSecondRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cycle := &scriptedCycle{onCall: func(n int) {
		if n == 1 {
			close(started)
			<-release
		}
	}}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started

	err = s.Run(ctx)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	close(release)
	cancel()
	require.NoError(t, <-done)
}

func TestIngestionScheduler_RunOnceSerialisesCycles(t *testing.T) {
	cycle := &scriptedCycle{onCall: func(int) { time.Sleep(5 * time.Millisecond) }}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, cycle.callCount())
	assert.Equal(t, 1, cycle.maxSeen)
	assert.Equal(t, 5, s.Stats().Cycles)
}

func TestIngestionScheduler_RunOnceReportsError(t *testing.T) {
	cycle := &scriptedCycle{failOn: map[int]error{1: errors.New("no quotes")}}
	s, err := NewIngestionScheduler(&mockLogger{}, cycle, time.Hour)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "no quotes", s.Stats().LastError)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)
	assert.Empty(t, s.Stats().LastError)
	assert.Equal(t, 1, s.Stats().Failures)
}

// ctxCheckedHistory rejects store calls made with a finished context, like a database driver does.
type ctxCheckedHistory struct {
	*mockHistory
}

func (h ctxCheckedHistory) Append(ctx context.Context, s domain.RateSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.mockHistory.Append(ctx, s)
}

func (h ctxCheckedHistory) OldestSince(ctx context.Context, symbol string, since time.Time) (domain.RateSample, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.RateSample{}, false, err
	}
	return h.mockHistory.OldestSince(ctx, symbol, since)
}

func TestIngestionScheduler_CancelDuringCycleCompletesCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &mockProvider{onFetch: cancel}
	provider.setQuotes(quote("AAAUSDT", "1"), quote("BBBUSDT", "2"), quote("CCCUSDT", "3"))
	history := newMockHistory()
	rates, err := NewRateService(&mockLogger{}, provider, ctxCheckedHistory{history}, eventbus.New(eventbus.Options{}), NewChangeDetector(DefaultThresholdPercent), nil)
	require.NoError(t, err)

	s, err := NewIngestionScheduler(&mockLogger{}, rates, time.Hour)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	for _, symbol := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"} {
		assert.Equal(t, 1, history.count(symbol), symbol)
	}
	stats := s.Stats()
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 0, stats.Failures)
	assert.Empty(t, stats.LastError)
}
