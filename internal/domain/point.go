package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Location sentinels used when no place label can be produced.
const (
	LocationUnknown        = "Unknown location"
	LocationGeocodingError = "Geocoding error"
)

// EnrichedHeader is the fixed header row of an enriched point table.
var EnrichedHeader = []string{"point_id", "easting", "northing", "location"}

// PointRecord is one input row reduced to the columns used here. Easting and
// northing keep their original text so output rows reproduce the input exactly.
type PointRecord struct {
	PointID  string
	Easting  string
	Northing string
}

// Planar parses the easting/northing pair.
func (p PointRecord) Planar() (easting, northing float64, err error) {
	easting, err = parseCoordinate("easting", p.Easting)
	if err != nil {
		return 0, 0, err
	}
	northing, err = parseCoordinate("northing", p.Northing)
	if err != nil {
		return 0, 0, err
	}
	return easting, northing, nil
}

func parseCoordinate(name, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s is empty", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, fmt.Errorf("%s %q: %w", name, s, err)
	}
	return v, nil
}

// GeographicCoordinate is a WGS84 latitude/longitude pair in degrees.
type GeographicCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EnrichedPointRecord is one output row.
type EnrichedPointRecord struct {
	PointID  string
	Easting  string
	Northing string
	Location string
}

// Enrich pairs an input record with its resolved location. An empty label is
// replaced by LocationUnknown so the location column is never blank.
func Enrich(p PointRecord, location string) EnrichedPointRecord {
	if strings.TrimSpace(location) == "" {
		location = LocationUnknown
	}
	return EnrichedPointRecord{
		PointID:  p.PointID,
		Easting:  p.Easting,
		Northing: p.Northing,
		Location: location,
	}
}

// Row returns the record as CSV fields in EnrichedHeader order.
func (r EnrichedPointRecord) Row() []string {
	return []string{r.PointID, r.Easting, r.Northing, r.Location}
}

// IsSentinelLocation reports whether a location value is one of the failure sentinels.
func IsSentinelLocation(s string) bool {
	return s == LocationUnknown || s == LocationGeocodingError
}

// EnrichmentResult describes a finished enrichment run.
type EnrichmentResult struct {
	InputPath     string `json:"input_path"`
	OutputPath    string `json:"output_path"`
	Rows          int    `json:"rows"`
	Resolved      int    `json:"resolved"`
	Unknown       int    `json:"unknown"`
	GeocodeErrors int    `json:"geocode_errors"`
}
