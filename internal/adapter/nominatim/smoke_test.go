//go:build nominatim

package nominatim

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the public Nominatim server. Keep them few; the usage policy
// allows one request per second.
// Run with: go test -tags=nominatim ./internal/adapter/nominatim/ -v -count=1

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := NewClient(DefaultURL, "egms-etl-service-smoke-test", 10*time.Second,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	addr, err := c.ReverseGeocode(context.Background(), 48.8566, 2.3522)
	require.NoError(t, err)

	assert.Equal(t, "France", addr.Country)
	assert.Contains(t, addr.Label(), "Paris")
}
