package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Geocoder providers.
const (
	ProviderNominatim = "nominatim"
	ProviderMapbox    = "mapbox"
	ProviderNone      = "none"
)

// DefaultArchiveURL is the EGMS archive endpoint template. Placeholders:
// {e}, {n} tile indices, {d} displacement code, {year} release, {id} credential.
const DefaultArchiveURL = "https://egms.land.copernicus.eu/insar-api/archive/download/EGMS_L3_E{e}N{n}_100km_{d}_{year}_1.zip?id={id}"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Archive download configuration.
	ArchiveURL         string
	DownloadDir        string
	DownloadDelay      time.Duration
	DownloadTimeout    time.Duration
	DownloadMaxRetries int
	DefaultYear        string
	ArchiveID          string

	// Enrichment and geocoding configuration.
	EnrichedDir        string
	GeocoderProvider   string
	GeocodeDelay       time.Duration
	GeocodeTimeout     time.Duration
	GeocodeMaxRetries  int
	GeocodeCacheSize   int
	GeocodeCacheDB     string
	NominatimURL       string
	NominatimUserAgent string
	MapboxToken        string

	// Outcome events; disabled when KafkaBrokers is empty.
	KafkaBrokers      []string
	KafkaOutcomeTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	durations := map[string]*time.Duration{}
	var (
		downloadDelay, downloadTimeout time.Duration
		geocodeDelay, geocodeTimeout   time.Duration
	)
	durations["EGMS_DOWNLOAD_DELAY"] = &downloadDelay
	durations["EGMS_DOWNLOAD_TIMEOUT"] = &downloadTimeout
	durations["GEOCODE_DELAY"] = &geocodeDelay
	durations["GEOCODE_TIMEOUT"] = &geocodeTimeout
	defaults := map[string]string{
		"EGMS_DOWNLOAD_DELAY":   "3s",
		"EGMS_DOWNLOAD_TIMEOUT": "10m",
		"GEOCODE_DELAY":         "500ms",
		"GEOCODE_TIMEOUT":       "10s",
	}
	for key, dst := range durations {
		d, err := parseDuration(key, defaults[key])
		if err != nil {
			return nil, err
		}
		*dst = d
	}
	if downloadTimeout <= 0 {
		return nil, errors.New("invalid EGMS_DOWNLOAD_TIMEOUT: must be positive")
	}
	if geocodeTimeout <= 0 {
		return nil, errors.New("invalid GEOCODE_TIMEOUT: must be positive")
	}

	downloadRetries, err := parseNonNegativeInt("EGMS_DOWNLOAD_MAX_RETRIES", 1)
	if err != nil {
		return nil, err
	}
	geocodeRetries, err := parseNonNegativeInt("GEOCODE_MAX_RETRIES", 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ArchiveURL:         sharedcfg.EnvOrDefault("EGMS_ARCHIVE_URL", DefaultArchiveURL),
		DownloadDir:        sharedcfg.EnvOrDefault("EGMS_DOWNLOAD_DIR", "Point_downloads"),
		DownloadDelay:      downloadDelay,
		DownloadTimeout:    downloadTimeout,
		DownloadMaxRetries: downloadRetries,
		DefaultYear:        sharedcfg.EnvOrDefault("EGMS_DEFAULT_YEAR", "2019_2023"),
		ArchiveID:          sharedcfg.EnvOrDefault("EGMS_ARCHIVE_ID", "7ce01544f73b4a9780b56f9c96fe4de3"),

		EnrichedDir:        sharedcfg.EnvOrDefault("EGMS_ENRICHED_DIR", "Point_locations"),
		GeocoderProvider:   strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER_PROVIDER", ProviderNominatim)),
		GeocodeDelay:       geocodeDelay,
		GeocodeTimeout:     geocodeTimeout,
		GeocodeMaxRetries:  geocodeRetries,
		GeocodeCacheSize:   parseCacheSize(),
		GeocodeCacheDB:     os.Getenv("GEOCODE_CACHE_DB"),
		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org/reverse"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "egms-etl-service"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),

		KafkaOutcomeTopic: sharedcfg.EnvOrDefault("KAFKA_OUTCOME_TOPIC", "egms-outcomes"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is called by Load and again by
// callers that apply per-invocation overrides.
func (c *Config) Validate() error {
	if c.DownloadDelay < 0 {
		return errors.New("invalid EGMS_DOWNLOAD_DELAY: must not be negative")
	}
	if c.GeocodeDelay < 0 {
		return errors.New("invalid GEOCODE_DELAY: must not be negative")
	}
	if !strings.Contains(c.ArchiveURL, "{e}") || !strings.Contains(c.ArchiveURL, "{n}") {
		return errors.New("invalid EGMS_ARCHIVE_URL: template must contain {e} and {n}")
	}
	if c.DownloadDir == "" {
		return errors.New("EGMS_DOWNLOAD_DIR is required")
	}
	if c.EnrichedDir == "" {
		return errors.New("EGMS_ENRICHED_DIR is required")
	}
	switch c.GeocoderProvider {
	case ProviderNominatim, ProviderNone:
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return fmt.Errorf("invalid GEOCODER_PROVIDER %q", c.GeocoderProvider)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaOutcomeTopic == "" {
		return errors.New("KAFKA_OUTCOME_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// KafkaEnabled reports whether outcome events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
