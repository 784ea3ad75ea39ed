package pipeline

import (
	"context"
	"log/slog"
	"math"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/ratelimit"
	"github.com/jonboulle/clockwork"
)

// ThrottledGeocoder waits on the geocoding rate limit before every call to the
// wrapped provider. It sits beneath the caches so cache hits cost no slot.
type ThrottledGeocoder struct {
	inner   domain.ReverseGeocoder
	limiter Limiter
}

// NewThrottledGeocoder wraps inner with the geocode service limit.
func NewThrottledGeocoder(inner domain.ReverseGeocoder, l Limiter) *ThrottledGeocoder {
	return &ThrottledGeocoder{inner: inner, limiter: l}
}

func (g *ThrottledGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	if err := g.limiter.Wait(ctx, ratelimit.ServiceGeocode); err != nil {
		return domain.Address{}, err
	}
	return g.inner.ReverseGeocode(ctx, lat, lon)
}

// Resolution classifies the label produced for one point.
type Resolution int

const (
	Resolved Resolution = iota
	Unknown
	GeocodeFailed
)

// Resolver turns a coordinate into a place label. It never fails: lookup
// errors become domain.LocationGeocodingError after bounded retries.
type Resolver struct {
	geocoder domain.ReverseGeocoder
	retry    RetryPolicy
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil geocoder resolves every point to
// domain.LocationUnknown without any network call.
func NewResolver(g domain.ReverseGeocoder, retry RetryPolicy, logger *slog.Logger) *Resolver {
	return &Resolver{
		geocoder: g,
		retry:    retry,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
	}
}

// Resolve returns the label for lat/lon. NaN in either coordinate marks an
// upstream projection failure and yields domain.LocationUnknown immediately.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (string, Resolution) {
	if math.IsNaN(lat) || math.IsNaN(lon) || r.geocoder == nil {
		return domain.LocationUnknown, Unknown
	}

	backoff := r.retry.Backoff
	for attempt := 1; ; attempt++ {
		addr, err := r.geocoder.ReverseGeocode(ctx, lat, lon)
		if err == nil {
			if label := addr.Label(); label != "" {
				return label, Resolved
			}
			return domain.LocationUnknown, Unknown
		}

		if !domain.IsTransient(err) || attempt >= r.retry.attempts() || ctx.Err() != nil {
			r.logger.Warn("reverse geocode failed", "latitude", lat, "longitude", lon, "attempts", attempt, "error", err)
			return domain.LocationGeocodingError, GeocodeFailed
		}
		r.logger.Debug("transient geocode failure, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !sleepWithContext(ctx, r.clock, backoff) {
			return domain.LocationGeocodingError, GeocodeFailed
		}
		backoff = nextBackoff(backoff, r.retry.MaxBackoff)
	}
}
