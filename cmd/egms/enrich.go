package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type enrichFlags struct {
	outDir   string
	provider string
	delay    time.Duration
	cacheDB  string
}

func enrichCmd(g *globals) *cobra.Command {
	var f *enrichFlags

	cmd := &cobra.Command{
		Use:   "enrich [csv...]",
		Short: "Add reverse-geocoded place names to point CSVs",
		Long: `Enrich reads each point CSV, projects its easting/northing to WGS84 and
writes <name>_locations.csv with pid, easting, northing and location columns.
With no arguments every CSV in the download directory is enriched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, g)
			inputs, err := enrichInputs(args, g.cfg.DownloadDir)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			enricher := a.enricher()
			batchID := uuid.NewString()
			var failed []string
			for _, input := range inputs {
				bar := newProgressRenderer(out, g.logger)
				result, err := enricher.Enrich(cmd.Context(), input, bar.Report)
				bar.Finish()
				if err != nil {
					if cmd.Context().Err() != nil {
						return err
					}
					fmt.Fprintf(out, "Error processing %s: %v\n", filepath.Base(input), err)
					failed = append(failed, filepath.Base(input))
					continue
				}
				a.publish(cmd.Context(), []domain.OutcomeEvent{domain.NewEnrichmentEvent(batchID, result)})
				printEnrichment(out, result)
			}
			if len(failed) > 0 {
				return fmt.Errorf("enrichment failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}

	f = bindEnrichFlags(cmd)
	return cmd
}

func bindEnrichFlags(cmd *cobra.Command) *enrichFlags {
	f := &enrichFlags{}
	fl := cmd.Flags()
	fl.StringVar(&f.outDir, "out-dir", "", "enriched output directory; overrides EGMS_ENRICHED_DIR")
	fl.StringVar(&f.provider, "provider", "", "reverse geocoder: nominatim, mapbox or none; overrides GEOCODER_PROVIDER")
	fl.DurationVar(&f.delay, "delay", 0, "minimum delay between geocoding requests; overrides GEOCODE_DELAY")
	fl.StringVar(&f.cacheDB, "cache-db", "", "SQLite geocode cache path; overrides GEOCODE_CACHE_DB")
	return f
}

func (f *enrichFlags) apply(cmd *cobra.Command, g *globals) {
	fl := cmd.Flags()
	if fl.Changed("out-dir") {
		g.cfg.EnrichedDir = f.outDir
	}
	if fl.Changed("provider") {
		g.cfg.GeocoderProvider = strings.ToLower(f.provider)
	}
	if fl.Changed("delay") {
		g.cfg.GeocodeDelay = f.delay
	}
	if fl.Changed("cache-db") {
		g.cfg.GeocodeCacheDB = f.cacheDB
	}
}

// enrichInputs returns the explicit arguments, or every .csv file in dir in
// name order when none are given.
func enrichInputs(args []string, dir string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list download directory: %w", err)
	}
	var inputs []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		inputs = append(inputs, filepath.Join(dir, e.Name()))
	}
	if len(inputs) == 0 {
		return nil, errors.New("no CSV files found in " + dir)
	}
	slices.Sort(inputs)
	return inputs, nil
}

func printEnrichment(w io.Writer, r domain.EnrichmentResult) {
	fmt.Fprintf(w, "Enriched %d points into %s (%d resolved, %d unknown, %d geocoding errors)\n",
		r.Rows, r.OutputPath, r.Resolved, r.Unknown, r.GeocodeErrors)
}
