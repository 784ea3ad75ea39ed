// Package sqlite persists reverse-geocoding replies across runs so a re-run of
// an enrichment does not spend rate-limited requests on coordinates it has
// already resolved.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	provider   TEXT NOT NULL,
	coord_key  TEXT NOT NULL,
	address    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (provider, coord_key)
)`

// Cache is a persistent reverse-geocoding cache keyed by provider and coordinates.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("cache schema version %d is newer than supported %d", version, schemaVersion)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached address for provider and key.
func (c *Cache) Get(ctx context.Context, provider, key string) (domain.Address, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT address FROM geocode_cache WHERE provider = ? AND coord_key = ?`, provider, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Address{}, false, nil
	}
	if err != nil {
		return domain.Address{}, false, fmt.Errorf("query cache: %w", err)
	}
	var addr domain.Address
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		return domain.Address{}, false, fmt.Errorf("decode cached address: %w", err)
	}
	return addr, true, nil
}

// Put stores or replaces the address for provider and key.
func (c *Cache) Put(ctx context.Context, provider, key string, addr domain.Address) error {
	raw, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (provider, coord_key, address, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (provider, coord_key) DO UPDATE SET address = excluded.address, created_at = excluded.created_at`,
		provider, key, string(raw), domain.Now().UTC())
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Count returns the number of cached entries across providers.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geocode_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return n, nil
}

// CachedGeocoder consults the persistent cache before the wrapped geocoder.
// Cache read and write failures are logged and otherwise ignored; the cache
// never turns a successful lookup into an error.
type CachedGeocoder struct {
	inner    domain.ReverseGeocoder
	cache    *Cache
	provider string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewCachedGeocoder wraps inner. provider namespaces the entries so switching
// providers does not serve another provider's labels.
func NewCachedGeocoder(inner domain.ReverseGeocoder, cache *Cache, provider string, metrics *observability.Metrics, logger *slog.Logger) *CachedGeocoder {
	return &CachedGeocoder{inner: inner, cache: cache, provider: provider, metrics: metrics, logger: logger}
}

func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	key := domain.CoordinateKey(lat, lon)
	addr, ok, err := g.cache.Get(ctx, g.provider, key)
	if err != nil {
		g.logger.Warn("geocode cache read failed", "key", key, "error", err)
	}
	if ok {
		g.metrics.GeocodeCache.WithLabelValues("sqlite", "hit").Inc()
		return addr, nil
	}
	g.metrics.GeocodeCache.WithLabelValues("sqlite", "miss").Inc()

	addr, err = g.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return addr, err
	}
	if err := g.cache.Put(ctx, g.provider, key, addr); err != nil {
		g.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}
	return addr, nil
}
