package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
)

const providerName = "mapbox"

// maxResponseBytes bounds the decoded reply body.
const maxResponseBytes = 1 << 20

// Client implements domain.ReverseGeocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode converts coordinates to the enclosing place and country.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality,country"},
	}

	start := time.Now()
	addr, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "error").Inc()
		c.logger.Debug("mapbox reverse geocode failed", "lat", lat, "lon", lon, "error", err)
	case addr.Empty():
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "success").Inc()
	}
	return addr, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Address{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Address{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Address{}, &domain.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var mapboxResp response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&mapboxResp); err != nil {
		return domain.Address{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.Address{}, nil
	}
	return mapboxResp.Features[0].address(), nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string         `json:"id"` // e.g. "place.2345", "country.8790"
	PlaceType []string       `json:"place_type"`
	PlaceName string         `json:"place_name"`
	Text      string         `json:"text"`
	Context   []contextEntry `json:"context"`
}

type contextEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// address maps a feature and its parent context onto the place/country pair
// used for labels. Mapbox places correspond to cities and towns; localities
// to villages and neighbourhoods.
func (f feature) address() domain.Address {
	addr := domain.Address{DisplayName: f.PlaceName}
	assign := func(id, text string) {
		switch {
		case strings.HasPrefix(id, "place."):
			if addr.City == "" {
				addr.City = text
			}
		case strings.HasPrefix(id, "locality."):
			if addr.Village == "" {
				addr.Village = text
			}
		case strings.HasPrefix(id, "country."):
			addr.Country = text
		}
	}
	assign(f.ID, f.Text)
	for _, ce := range f.Context {
		assign(ce.ID, ce.Text)
	}
	return addr
}
