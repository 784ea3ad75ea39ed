// Package nominatim implements reverse geocoding against an OpenStreetMap
// Nominatim server.
//
// The public server allows one request per second and requires an identifying
// User-Agent; callers are expected to throttle.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
)

const providerName = "nominatim"

// DefaultURL is the public reverse endpoint.
const DefaultURL = "https://nominatim.openstreetmap.org/reverse"

// Client implements domain.ReverseGeocoder.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
		metrics:    metrics,
		logger:     logger.With("component", "nominatim-client"),
	}
}

// ReverseGeocode looks up the address at lat/lon. A point with no address
// (open sea) yields an empty Address and no error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	start := time.Now()
	addr, err := c.lookup(ctx, lat, lon)
	c.metrics.GeocodeAPIDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "error").Inc()
		c.logger.Debug("reverse geocode failed", "latitude", lat, "longitude", lon, "error", err)
	case addr.Empty():
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "success").Inc()
	}
	return addr, err
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (domain.Address, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return domain.Address{}, fmt.Errorf("parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	// Building-level detail so the address carries village and town names.
	q.Set("zoom", "18")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.Address{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Address{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Address{}, &domain.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var r reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&r); err != nil {
		return domain.Address{}, fmt.Errorf("decode response: %w", err)
	}
	if r.Error != "" {
		// "Unable to geocode" is Nominatim's way of saying nothing is here.
		return domain.Address{}, nil
	}
	return domain.Address{
		City:        r.Address.City,
		Town:        r.Address.Town,
		Village:     r.Address.Village,
		Country:     r.Address.Country,
		DisplayName: r.DisplayName,
	}, nil
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Country string `json:"country"`
	} `json:"address"`
}
