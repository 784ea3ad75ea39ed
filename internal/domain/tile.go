package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Grid index bounds accepted by the archive service.
const (
	MinTileE = 9
	MaxTileE = 65
	MinTileN = 9
	MaxTileN = 55
)

// DisplacementType selects the motion component of a tile.
type DisplacementType string

const (
	DisplacementEastWest DisplacementType = "E"
	DisplacementVertical DisplacementType = "U"
)

// AllDisplacements lists every displacement type in request order.
var AllDisplacements = []DisplacementType{DisplacementEastWest, DisplacementVertical}

// Label returns the human-readable name of the displacement component.
func (d DisplacementType) Label() string {
	switch d {
	case DisplacementEastWest:
		return "East-West"
	case DisplacementVertical:
		return "Vertical"
	default:
		return string(d)
	}
}

// ParseDisplacements parses a displacement selection: "E", "U" or "both".
func ParseDisplacements(s string) ([]DisplacementType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "E":
		return []DisplacementType{DisplacementEastWest}, nil
	case "U":
		return []DisplacementType{DisplacementVertical}, nil
	case "BOTH", "E,U", "U,E":
		return slices.Clone(AllDisplacements), nil
	default:
		return nil, fmt.Errorf("invalid displacement %q: want E, U or both", s)
	}
}

// NormalizeDisplacements validates a displacement set and returns it in the
// fixed request order (E before U) without duplicates.
func NormalizeDisplacements(ds []DisplacementType) ([]DisplacementType, error) {
	if len(ds) == 0 {
		return nil, errors.New("at least one displacement type is required")
	}
	for _, d := range ds {
		if !slices.Contains(AllDisplacements, d) {
			return nil, fmt.Errorf("invalid displacement %q", d)
		}
	}
	out := make([]DisplacementType, 0, len(AllDisplacements))
	for _, d := range AllDisplacements {
		if slices.Contains(ds, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// YearRange is an EGMS release date-range label such as "2019_2023".
type YearRange string

// SupportedYearRanges lists the releases the archive service serves.
var SupportedYearRanges = []YearRange{"2018_2022", "2019_2023", "2020_2024"}

// ParseYearRange validates a year range label.
func ParseYearRange(s string) (YearRange, error) {
	y := YearRange(strings.TrimSpace(s))
	if !slices.Contains(SupportedYearRanges, y) {
		return "", fmt.Errorf("unsupported year range %q: want one of %v", s, SupportedYearRanges)
	}
	return y, nil
}

// ArchiveCredential is the opaque id parameter required by the archive service.
type ArchiveCredential string

// TileCoordinate is the grid index of a 100x100 km tile.
type TileCoordinate struct {
	e int
	n int
}

// NewTileCoordinate validates the grid indices and returns the tile.
func NewTileCoordinate(e, n int) (TileCoordinate, error) {
	if e < MinTileE || e > MaxTileE {
		return TileCoordinate{}, fmt.Errorf("tile east index %d out of range [%d, %d]", e, MinTileE, MaxTileE)
	}
	if n < MinTileN || n > MaxTileN {
		return TileCoordinate{}, fmt.Errorf("tile north index %d out of range [%d, %d]", n, MinTileN, MaxTileN)
	}
	return TileCoordinate{e: e, n: n}, nil
}

func (t TileCoordinate) E() int { return t.e }
func (t TileCoordinate) N() int { return t.n }

// Code returns the tile code used in archive names, e.g. "E32N31".
func (t TileCoordinate) Code() string {
	return fmt.Sprintf("E%dN%d", t.e, t.n)
}

// Region is an inclusive rectangle of tile indices.
type Region struct {
	MinE int `json:"min_e"`
	MaxE int `json:"max_e"`
	MinN int `json:"min_n"`
	MaxN int `json:"max_n"`
}

// SingleTile returns the region covering exactly one tile.
func SingleTile(e, n int) Region {
	return Region{MinE: e, MaxE: e, MinN: n, MaxN: n}
}

// Validate checks ordering and grid bounds.
func (r Region) Validate() error {
	if r.MinE > r.MaxE {
		return fmt.Errorf("region min_e %d greater than max_e %d", r.MinE, r.MaxE)
	}
	if r.MinN > r.MaxN {
		return fmt.Errorf("region min_n %d greater than max_n %d", r.MinN, r.MaxN)
	}
	if _, err := NewTileCoordinate(r.MinE, r.MinN); err != nil {
		return err
	}
	if _, err := NewTileCoordinate(r.MaxE, r.MaxN); err != nil {
		return err
	}
	return nil
}

// TileCount returns the number of tiles in the region.
func (r Region) TileCount() int {
	if r.MinE > r.MaxE || r.MinN > r.MaxN {
		return 0
	}
	return (r.MaxE - r.MinE + 1) * (r.MaxN - r.MinN + 1)
}

// DownloadTask is one archive request: a tile, a displacement component, a
// release and the credential to present.
type DownloadTask struct {
	Tile         TileCoordinate
	Displacement DisplacementType
	Year         YearRange
	Credential   ArchiveCredential
}

// ArchiveName is the base name shared by the archive and the CSV inside it,
// e.g. "EGMS_L3_E32N31_100km_U_2019_2023_1".
func (t DownloadTask) ArchiveName() string {
	return fmt.Sprintf("EGMS_L3_%s_100km_%s_%s_1", t.Tile.Code(), t.Displacement, t.Year)
}

// String identifies the task in logs and status lines, e.g. "E32N31 U".
func (t DownloadTask) String() string {
	return t.Tile.Code() + " " + string(t.Displacement)
}

// EnumerateTasks expands a region into download tasks in row-major order:
// east index outermost, north index inside it, displacement innermost.
func EnumerateTasks(r Region, displacements []DisplacementType, year YearRange, cred ArchiveCredential) ([]DownloadTask, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ds, err := NormalizeDisplacements(displacements)
	if err != nil {
		return nil, err
	}
	if _, err := ParseYearRange(string(year)); err != nil {
		return nil, err
	}

	tasks := make([]DownloadTask, 0, r.TileCount()*len(ds))
	for e := r.MinE; e <= r.MaxE; e++ {
		for n := r.MinN; n <= r.MaxN; n++ {
			tile := TileCoordinate{e: e, n: n}
			for _, d := range ds {
				tasks = append(tasks, DownloadTask{
					Tile:         tile,
					Displacement: d,
					Year:         year,
					Credential:   cred,
				})
			}
		}
	}
	return tasks, nil
}
