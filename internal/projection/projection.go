// Package projection converts EGMS point coordinates from ETRS89-extended /
// LAEA Europe (EPSG:3035) to WGS84 geographic coordinates (EPSG:4326).
//
// The inverse Lambert Azimuthal Equal Area formulas follow IOGP Guidance Note
// 7-2 (EPSG method 9820) on the GRS 1980 ellipsoid. ETRS89 and WGS84 are
// treated as coincident, as EGMS does, so no datum shift is applied.
package projection

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/paulmach/orb"
)

// Reference system identifiers.
const (
	SourceCRS = "EPSG:3035"
	TargetCRS = "EPSG:4326"
)

var (
	// ErrUnavailable is returned by every Transform call on a transformer whose
	// initialization failed.
	ErrUnavailable = errors.New("coordinate transformer unavailable")

	// ErrOutOfDomain is returned for coordinates outside the source system's
	// valid area or non-finite input.
	ErrOutOfDomain = errors.New("coordinate out of domain")
)

// Domain is the planar area covered by the EGMS tile grid, in metres.
var Domain = orb.Bound{
	Min: orb.Point{float64(domain.MinTileE) * 100_000, float64(domain.MinTileN) * 100_000},
	Max: orb.Point{float64(domain.MaxTileE+1) * 100_000, float64(domain.MaxTileN+1) * 100_000},
}

// laea holds the derived constants of a Lambert Azimuthal Equal Area projection.
type laea struct {
	lat0, lon0     float64 // radians
	falseEasting   float64
	falseNorthing  float64
	e2, e4, e6     float64
	rq             float64
	d              float64
	sinBeta0       float64
	cosBeta0       float64
	domain         orb.Bound
}

// definition describes a planar source system we know how to invert.
type definition struct {
	semiMajor     float64
	invFlattening float64
	lat0, lon0    float64 // degrees
	falseEasting  float64
	falseNorthing float64
	domain        orb.Bound
}

var definitions = map[string]definition{
	SourceCRS: {
		semiMajor:     6378137.0,
		invFlattening: 298.257222101,
		lat0:          52,
		lon0:          10,
		falseEasting:  4321000,
		falseNorthing: 3210000,
		domain:        Domain,
	},
}

// Transformer projects planar easting/northing to latitude/longitude. It is
// immutable after construction and safe for concurrent use.
type Transformer struct {
	proj    *laea
	initErr error
}

// New builds a transformer between the given reference systems. It always
// returns a non-nil Transformer; when the pair is not supported the result is
// unavailable and Err reports why.
func New(source, target string) *Transformer {
	if target != TargetCRS {
		return &Transformer{initErr: fmt.Errorf("no projection definition for target %s", target)}
	}
	def, ok := definitions[source]
	if !ok {
		return &Transformer{initErr: fmt.Errorf("no projection definition for source %s", source)}
	}
	p, err := newLAEA(def)
	if err != nil {
		return &Transformer{initErr: err}
	}
	return &Transformer{proj: p}
}

var shared = sync.OnceValue(func() *Transformer {
	return New(SourceCRS, TargetCRS)
})

// Shared returns the process-wide EPSG:3035 to EPSG:4326 transformer, built on first use.
func Shared() *Transformer {
	return shared()
}

// Err returns the initialization error, or nil when the transformer is usable.
func (t *Transformer) Err() error {
	if t.initErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, t.initErr)
}

// Available reports whether Transform can produce coordinates.
func (t *Transformer) Available() bool {
	return t.initErr == nil
}

// Transform converts an easting/northing pair in metres to WGS84 degrees.
func (t *Transformer) Transform(easting, northing float64) (domain.GeographicCoordinate, error) {
	if err := t.Err(); err != nil {
		return domain.GeographicCoordinate{}, err
	}
	pt := orb.Point{easting, northing}
	if !finite(easting) || !finite(northing) || !t.proj.domain.Contains(pt) {
		return domain.GeographicCoordinate{}, fmt.Errorf("%w: easting=%v northing=%v", ErrOutOfDomain, easting, northing)
	}

	geo := t.proj.inverse(pt)
	lat, lon := geo.Lat(), geo.Lon()
	if !finite(lat) || !finite(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return domain.GeographicCoordinate{}, fmt.Errorf("%w: easting=%v northing=%v", ErrOutOfDomain, easting, northing)
	}
	return domain.GeographicCoordinate{Latitude: lat, Longitude: lon}, nil
}

func newLAEA(def definition) (*laea, error) {
	if def.semiMajor <= 0 || def.invFlattening <= 1 {
		return nil, fmt.Errorf("invalid ellipsoid a=%v 1/f=%v", def.semiMajor, def.invFlattening)
	}
	f := 1 / def.invFlattening
	e2 := 2*f - f*f
	e := math.Sqrt(e2)
	lat0 := def.lat0 * math.Pi / 180
	sinLat0 := math.Sin(lat0)

	qp := q(1, e, e2)
	q0 := q(sinLat0, e, e2)
	beta0 := math.Asin(q0 / qp)
	rq := def.semiMajor * math.Sqrt(qp/2)
	d := def.semiMajor * (math.Cos(lat0) / math.Sqrt(1-e2*sinLat0*sinLat0)) / (rq * math.Cos(beta0))

	return &laea{
		lat0:          lat0,
		lon0:          def.lon0 * math.Pi / 180,
		falseEasting:  def.falseEasting,
		falseNorthing: def.falseNorthing,
		e2:            e2,
		e4:            e2 * e2,
		e6:            e2 * e2 * e2,
		rq:            rq,
		d:             d,
		sinBeta0:      math.Sin(beta0),
		cosBeta0:      math.Cos(beta0),
		domain:        def.domain,
	}, nil
}

// q is the authalic latitude helper function of the ellipsoid.
func q(sinLat, e, e2 float64) float64 {
	return (1 - e2) * (sinLat/(1-e2*sinLat*sinLat) - (1/(2*e))*math.Log((1-e*sinLat)/(1+e*sinLat)))
}

// inverse maps a planar point to an orb.Point holding (lon, lat) in degrees.
func (p *laea) inverse(pt orb.Point) orb.Point {
	x := pt.X() - p.falseEasting
	y := pt.Y() - p.falseNorthing

	rho := math.Hypot(x/p.d, p.d*y)
	if rho == 0 {
		return orb.Point{degrees(p.lon0), degrees(p.lat0)}
	}

	c := 2 * math.Asin(rho/(2*p.rq))
	sinC, cosC := math.Sincos(c)
	betaPrime := math.Asin(cosC*p.sinBeta0 + (p.d*y*sinC*p.cosBeta0)/rho)

	lon := p.lon0 + math.Atan2(x*sinC, p.d*rho*p.cosBeta0*cosC-p.d*p.d*y*p.sinBeta0*sinC)
	lat := betaPrime +
		(p.e2/3+31*p.e4/180+517*p.e6/5040)*math.Sin(2*betaPrime) +
		(23*p.e4/360+251*p.e6/3780)*math.Sin(4*betaPrime) +
		(761*p.e6/45360)*math.Sin(6*betaPrime)

	return orb.Point{degrees(lon), degrees(lat)}
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
