package geocache

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.Address
	err    error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.Address, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.Address{City: "Lyon", Country: "France"}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	a1, err := cached.ReverseGeocode(context.Background(), 45.764043, 4.835659)
	require.NoError(t, err)
	a2, err := cached.ReverseGeocode(context.Background(), 45.764043, 4.835659)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1, cached.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "miss")), 0)
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{result: domain.Address{City: "Lyon"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 45.0, 4.0)
	_, _ = cached.ReverseGeocode(context.Background(), 45.1, 4.0)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyReplyIsCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 45.0, -30.0)
	_, _ = cached.ReverseGeocode(context.Background(), 45.0, -30.0)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("boom")}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), 45.0, 4.0)
	require.Error(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 45.0, 4.0)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.Len())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.Address{City: "A"})
	c.put("b", domain.Address{City: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.City)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Address{City: "A"})
	c.put("b", domain.Address{City: "B"})
	c.put("c", domain.Address{City: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.City)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.City)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Address{City: "A"})
	c.put("b", domain.Address{City: "B"})

	// Access "a" to promote it
	c.get("a")

	// Insert "c": should evict "b" (LRU), not "a"
	c.put("c", domain.Address{City: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Address{City: "A1"})
	c.put("a", domain.Address{City: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.City)
}
