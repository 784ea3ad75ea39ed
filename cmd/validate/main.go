// Command validate checks an enriched point CSV against the source CSV it was
// produced from: header shape, row count, row order, verbatim coordinates and
// a non-empty location on every row. It also reports how many rows carry the
// failure sentinels.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -source Point_downloads/EGMS_L3_E43N32_100km_U_2019_2023_1.csv \
//	  -enriched Point_locations/EGMS_L3_E43N32_100km_U_2019_2023_1_locations.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxErrors caps the detail kept per phase; large files can fail every row.
const maxErrors = 20

func main() {
	source := flag.String("source", "", "path to the source point CSV")
	enriched := flag.String("enriched", "", "path to the enriched CSV")
	flag.Parse()

	if *source == "" || *enriched == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, *source, *enriched))
}

func run(w io.Writer, sourcePath, enrichedPath string) int {
	fmt.Fprintln(w, "=== EGMS Enrichment Validation ===")
	fmt.Fprintln(w)

	src, err := loadCSV(sourcePath)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load source CSV: %v\n", err)
		return 1
	}
	out, err := loadCSV(enrichedPath)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load enriched CSV: %v\n", err)
		return 1
	}
	mapping, err := domain.ResolveColumns(src[0])
	if err != nil {
		fmt.Fprintf(w, "FATAL: source columns: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateHeader(out[0]),
		validateRows(mapping, src[1:], out[1:]),
		validateLocations(out[1:]),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	unknown, geoErr := sentinelCounts(out[1:])
	fmt.Fprintf(w, "Rows: %d source, %d enriched (%d %q, %d %q)\n",
		len(src)-1, len(out)-1, unknown, domain.LocationUnknown, geoErr, domain.LocationGeocodingError)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}
	return rows, nil
}

func validateHeader(header []string) *phase {
	p := &phase{name: "Enriched header"}
	if !slices.Equal(header, domain.EnrichedHeader) {
		p.errorf("header %v, want %v", header, domain.EnrichedHeader)
	}
	return p
}

// validateRows checks that every source row appears once, in order, with its
// id and coordinates copied verbatim.
func validateRows(m domain.ColumnMapping, src, out [][]string) *phase {
	p := &phase{name: "Row count, order and coordinates"}
	if len(src) != len(out) {
		p.errorf("row count: source %d, enriched %d", len(src), len(out))
	}
	for i := range min(len(src), len(out)) {
		if len(p.errors) >= maxErrors {
			p.errorf("further row errors omitted")
			break
		}
		want := m.Record(src[i])
		got := out[i]
		if len(got) != len(domain.EnrichedHeader) {
			p.errorf("line %d: %d fields, want %d", i+2, len(got), len(domain.EnrichedHeader))
			continue
		}
		if got[0] != want.PointID || got[1] != want.Easting || got[2] != want.Northing {
			p.errorf("line %d: got (%s, %s, %s), want (%s, %s, %s)",
				i+2, got[0], got[1], got[2], want.PointID, want.Easting, want.Northing)
		}
	}
	return p
}

func validateLocations(out [][]string) *phase {
	p := &phase{name: "Location present"}
	for i, row := range out {
		if len(p.errors) >= maxErrors {
			p.errorf("further location errors omitted")
			break
		}
		if len(row) < len(domain.EnrichedHeader) || strings.TrimSpace(row[3]) == "" {
			p.errorf("line %d: empty location", i+2)
		}
	}
	return p
}

func sentinelCounts(out [][]string) (unknown, geocodeErrors int) {
	for _, row := range out {
		if len(row) < len(domain.EnrichedHeader) {
			continue
		}
		switch row[3] {
		case domain.LocationUnknown:
			unknown++
		case domain.LocationGeocodingError:
			geocodeErrors++
		}
	}
	return unknown, geocodeErrors
}
