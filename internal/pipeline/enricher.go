package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/fsutil"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
)

// OutputSuffix is appended to the input base name to form the enriched file name.
const OutputSuffix = "_locations.csv"

// CoordinateTransformer projects planar easting/northing to WGS84.
type CoordinateTransformer interface {
	Transform(easting, northing float64) (domain.GeographicCoordinate, error)
}

// Enricher streams a point CSV through projection and reverse geocoding.
type Enricher struct {
	transformer CoordinateTransformer
	resolver    *Resolver
	outputDir   string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewEnricher creates an Enricher writing into outputDir.
func NewEnricher(t CoordinateTransformer, r *Resolver, outputDir string, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	return &Enricher{
		transformer: t,
		resolver:    r,
		outputDir:   outputDir,
		metrics:     metrics,
		logger:      logger,
	}
}

// OutputPath returns where the enriched version of inputPath is written.
func (e *Enricher) OutputPath(inputPath string) string {
	base := filepath.Base(inputPath)
	return filepath.Join(e.outputDir, strings.TrimSuffix(base, filepath.Ext(base))+OutputSuffix)
}

// Enrich writes one output row per input row, in input order. Header problems
// and unreadable input fail the whole call and leave no output file; per-row
// projection or geocoding failures only degrade that row's location. The
// output replaces any previous file for the same input.
func (e *Enricher) Enrich(ctx context.Context, inputPath string, progress domain.ProgressFunc) (domain.EnrichmentResult, error) {
	start := time.Now()
	result := domain.EnrichmentResult{InputPath: inputPath, OutputPath: e.OutputPath(inputPath)}

	mapping, total, err := scanInput(inputPath)
	if err != nil {
		return result, err
	}
	if avail, ok := e.transformer.(interface{ Err() error }); ok && avail.Err() != nil {
		e.logger.Warn("coordinate transformer unavailable, all locations will be unknown", "error", avail.Err())
	}
	e.logger.Info("enrichment started", "input", inputPath, "rows", total, "columns", mapping.Describe())
	progress.Report(domain.Progress{Completed: 0, Total: total, Status: "Found columns: " + mapping.Describe()})

	in, err := os.Open(inputPath)
	if err != nil {
		return result, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	r := newCSVReader(in)
	if _, err := r.Read(); err != nil {
		return result, fmt.Errorf("read header: %w", err)
	}

	out, err := fsutil.Create(e.outputDir, filepath.Base(result.OutputPath))
	if err != nil {
		return result, err
	}
	defer out.Abort()
	w := csv.NewWriter(out)
	if err := w.Write(domain.EnrichedHeader); err != nil {
		return result, fmt.Errorf("write header: %w", err)
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read row %d: %w", result.Rows+1, err)
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("enrichment canceled after %d of %d rows: %w", result.Rows, total, err)
		}

		rec := mapping.Record(row)
		location, res := e.locate(ctx, rec)
		if err := w.Write(domain.Enrich(rec, location).Row()); err != nil {
			return result, fmt.Errorf("write row %d: %w", result.Rows+1, err)
		}

		result.Rows++
		e.count(&result, res)
		progress.Report(domain.Progress{
			Completed: result.Rows,
			Total:     total,
			Status:    fmt.Sprintf("Processing %d/%d points", result.Rows, total),
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return result, fmt.Errorf("flush output: %w", err)
	}
	if err := out.Commit(); err != nil {
		return result, err
	}

	e.metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("enrichment finished",
		"output", result.OutputPath,
		"rows", result.Rows,
		"resolved", result.Resolved,
		"unknown", result.Unknown,
		"geocode_errors", result.GeocodeErrors,
	)
	return result, nil
}

// locate projects and resolves one record. Projection failures surface as NaN
// so the resolver reports the point as unknown without a lookup.
func (e *Enricher) locate(ctx context.Context, rec domain.PointRecord) (string, Resolution) {
	lat, lon := math.NaN(), math.NaN()
	easting, northing, err := rec.Planar()
	if err == nil {
		var geo domain.GeographicCoordinate
		geo, err = e.transformer.Transform(easting, northing)
		if err == nil {
			lat, lon = geo.Latitude, geo.Longitude
		}
	}
	if err != nil {
		e.logger.Debug("point not projected", "point_id", rec.PointID, "error", err)
	}
	return e.resolver.Resolve(ctx, lat, lon)
}

func (e *Enricher) count(result *domain.EnrichmentResult, res Resolution) {
	switch res {
	case Resolved:
		result.Resolved++
		e.metrics.RowsEnriched.WithLabelValues("resolved").Inc()
	case Unknown:
		result.Unknown++
		e.metrics.RowsEnriched.WithLabelValues("unknown").Inc()
	case GeocodeFailed:
		result.GeocodeErrors++
		e.metrics.RowsEnriched.WithLabelValues("error").Inc()
	}
}

// scanInput validates the header and counts data rows in one pass.
func scanInput(path string) (domain.ColumnMapping, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ColumnMapping{}, 0, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := newCSVReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return domain.ColumnMapping{}, 0, fmt.Errorf("input %s is empty", filepath.Base(path))
	}
	if err != nil {
		return domain.ColumnMapping{}, 0, fmt.Errorf("read header: %w", err)
	}
	mapping, err := domain.ResolveColumns(header)
	if err != nil {
		return domain.ColumnMapping{}, 0, err
	}

	total := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.ColumnMapping{}, 0, fmt.Errorf("read row %d: %w", total+1, err)
		}
		total++
	}
	return mapping, total, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}
