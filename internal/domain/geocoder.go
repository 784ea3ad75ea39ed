package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Address is the structured reply of a reverse-geocoding provider.
type Address struct {
	City        string `json:"city,omitempty"`
	Town        string `json:"town,omitempty"`
	Village     string `json:"village,omitempty"`
	Country     string `json:"country,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Empty reports whether the provider returned nothing usable.
func (a Address) Empty() bool {
	return a.Locality() == "" && a.Country == "" && strings.TrimSpace(a.DisplayName) == ""
}

// Locality returns the most specific settlement name: city, then town, then village.
func (a Address) Locality() string {
	for _, s := range []string{a.City, a.Town, a.Village} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Label reduces an address to a short place label: "Locality, Country" when
// both are known, otherwise the full display name. Returns "" when neither is available.
func (a Address) Label() string {
	locality := a.Locality()
	country := strings.TrimSpace(a.Country)
	if locality != "" && country != "" {
		return locality + ", " + country
	}
	return strings.TrimSpace(a.DisplayName)
}

// ReverseGeocoder resolves coordinates to an address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Address, error)
}

// ProviderError is a non-success HTTP reply from a geocoding provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsTransient reports whether a geocoding error is worth retrying: provider
// throttling or server errors, timeouts and other network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return IsTransientStatus(pe.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// CoordinateKey identifies a lookup for caching. Coordinates are rounded to six
// decimals (about 0.1 m), well inside the spacing of distinct EGMS points.
func CoordinateKey(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}
