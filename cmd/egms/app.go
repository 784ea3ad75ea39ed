package main

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/adapter/egms"
	"github.com/couchcryptid/egms-etl-service/internal/adapter/geocache"
	kafkaadapter "github.com/couchcryptid/egms-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/egms-etl-service/internal/adapter/mapbox"
	"github.com/couchcryptid/egms-etl-service/internal/adapter/nominatim"
	"github.com/couchcryptid/egms-etl-service/internal/adapter/sqlite"
	"github.com/couchcryptid/egms-etl-service/internal/config"
	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/pipeline"
	"github.com/couchcryptid/egms-etl-service/internal/projection"
	"github.com/couchcryptid/egms-etl-service/internal/ratelimit"
)

// app wires the adapters and pipelines for one invocation. Close releases the
// SQLite cache and the Kafka writer.
type app struct {
	*globals
	limiter *ratelimit.Limiter
	cache   *sqlite.Cache
	writer  *kafkaadapter.Writer
}

func newApp(ctx context.Context, g *globals) (*app, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{globals: g}
	a.limiter = ratelimit.New(map[string]time.Duration{
		ratelimit.ServiceArchive: g.cfg.DownloadDelay,
		ratelimit.ServiceGeocode: g.cfg.GeocodeDelay,
	}, ratelimit.WithObserver(func(service string, waited time.Duration) {
		g.metrics.RateLimitWait.WithLabelValues(service).Observe(waited.Seconds())
	}))

	if g.cfg.GeocodeCacheDB != "" && g.cfg.GeocoderProvider != config.ProviderNone {
		cache, err := sqlite.Open(ctx, g.cfg.GeocodeCacheDB)
		if err != nil {
			return nil, fmt.Errorf("open geocode cache: %w", err)
		}
		a.cache = cache
	}
	if g.cfg.KafkaEnabled() {
		a.writer = kafkaadapter.NewWriter(g.cfg, g.metrics, g.logger)
	}
	return a, nil
}

func (a *app) downloader() *pipeline.Downloader {
	client := egms.NewClient(a.cfg.ArchiveURL, a.cfg.DownloadDir, a.cfg.DownloadTimeout, a.logger)
	retry := pipeline.RetryPolicy{
		MaxRetries: a.cfg.DownloadMaxRetries,
		Backoff:    a.cfg.DownloadDelay,
		MaxBackoff: time.Minute,
	}
	return pipeline.NewDownloader(client, a.limiter, retry, a.metrics, a.logger)
}

func (a *app) enricher() *pipeline.Enricher {
	retry := pipeline.RetryPolicy{
		MaxRetries: a.cfg.GeocodeMaxRetries,
		Backoff:    a.cfg.GeocodeDelay,
		MaxBackoff: 30 * time.Second,
	}
	resolver := pipeline.NewResolver(a.geocoder(), retry, a.logger)
	return pipeline.NewEnricher(projection.Shared(), resolver, a.cfg.EnrichedDir, a.metrics, a.logger)
}

// geocoder builds LRU -> SQLite -> rate limit -> provider. Cache hits never
// take a rate-limit slot. Returns nil when geocoding is disabled.
func (a *app) geocoder() domain.ReverseGeocoder {
	var provider domain.ReverseGeocoder
	switch a.cfg.GeocoderProvider {
	case config.ProviderMapbox:
		provider = mapbox.NewClient(a.cfg.MapboxToken, a.cfg.GeocodeTimeout, a.metrics, a.logger)
	case config.ProviderNominatim:
		provider = nominatim.NewClient(a.cfg.NominatimURL, a.cfg.NominatimUserAgent, a.cfg.GeocodeTimeout, a.metrics, a.logger)
	default:
		a.logger.Info("reverse geocoding disabled")
		return nil
	}

	g := domain.ReverseGeocoder(pipeline.NewThrottledGeocoder(provider, a.limiter))
	if a.cache != nil {
		g = sqlite.NewCachedGeocoder(g, a.cache, a.cfg.GeocoderProvider, a.metrics, a.logger)
	}
	g = geocache.NewCachedGeocoder(g, a.cfg.GeocodeCacheSize, a.metrics)
	a.logger.Info("reverse geocoding enabled",
		"provider", a.cfg.GeocoderProvider,
		"cache_size", a.cfg.GeocodeCacheSize,
		"cache_db", a.cfg.GeocodeCacheDB,
		"delay", a.cfg.GeocodeDelay,
	)
	return g
}

// sink returns the outcome event sink, or nil when Kafka is not configured.
func (a *app) sink() pipeline.EventSink {
	if a.writer == nil {
		return nil
	}
	return a.writer
}

// publish sends events best effort; CLI runs never fail on the sink.
func (a *app) publish(ctx context.Context, events []domain.OutcomeEvent) {
	s := a.sink()
	if s == nil || len(events) == 0 {
		return
	}
	if err := s.Publish(ctx, events); err != nil {
		a.logger.Warn("publish outcome events failed", "events", len(events), "error", err)
	}
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("geocode cache close error", "error", err)
		}
	}
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}
}
