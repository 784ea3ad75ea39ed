package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FirstCallDoesNotWait(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(map[string]time.Duration{ServiceArchive: 3 * time.Second}, WithClock(fc))

	require.NoError(t, l.Wait(context.Background(), ServiceArchive))
}

func TestLimiter_WaitsForInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var waits []time.Duration
	l := New(map[string]time.Duration{ServiceArchive: 3 * time.Second},
		WithClock(fc),
		WithObserver(func(_ string, d time.Duration) { waits = append(waits, d) }),
	)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, ServiceArchive))

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, ServiceArchive) }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	select {
	case <-done:
		t.Fatal("second call returned before the interval elapsed")
	default:
	}

	fc.Advance(3 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, []time.Duration{0, 3 * time.Second}, waits)
}

func TestLimiter_ElapsedTimeCredited(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(map[string]time.Duration{ServiceArchive: 3 * time.Second}, WithClock(fc))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, ServiceArchive))
	fc.Advance(5 * time.Second)

	// Enough time has already passed: no timer is armed.
	require.NoError(t, l.Wait(ctx, ServiceArchive))
}

func TestLimiter_ServicesAreIndependent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(map[string]time.Duration{
		ServiceArchive: 3 * time.Second,
		ServiceGeocode: 500 * time.Millisecond,
	}, WithClock(fc))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, ServiceArchive))
	require.NoError(t, l.Wait(ctx, ServiceGeocode))

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, ServiceGeocode) }()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(500 * time.Millisecond)
	require.NoError(t, <-done)
}

func TestLimiter_RealClockMinimumSpacing(t *testing.T) {
	const (
		n        = 5
		interval = 20 * time.Millisecond
	)
	l := New(map[string]time.Duration{ServiceGeocode: interval})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Wait(ctx, ServiceGeocode))
	}
	assert.GreaterOrEqual(t, time.Since(start), (n-1)*interval)
}

func TestLimiter_ConcurrentCallersShareInterval(t *testing.T) {
	const (
		callers  = 4
		interval = 15 * time.Millisecond
	)
	l := New(map[string]time.Duration{ServiceArchive: interval})
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(ctx, ServiceArchive))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), (callers-1)*interval)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(map[string]time.Duration{ServiceArchive: time.Minute}, WithClock(fc))
	require.NoError(t, l.Wait(context.Background(), ServiceArchive))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, ServiceArchive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "rate limiter canceled")
}

func TestLimiter_UnknownService(t *testing.T) {
	l := New(map[string]time.Duration{ServiceArchive: time.Second})
	err := l.Wait(context.Background(), "weather")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownService))

	d, ok := l.Interval(ServiceArchive)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}
