// Command genmock writes mock EGMS L3 archives for a tile region so the
// downloader and enrichment pipeline can be exercised without the real
// archive service. Each archive holds one point CSV shaped like the real
// product: pid, easting, northing, height and a few displacement columns.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -min-e 43 -max-e 43 -min-n 32 -max-n 32 -points 200
//
// Serve the directory over HTTP and point EGMS_ARCHIVE_URL at it:
//
//	EGMS_ARCHIVE_URL='http://localhost:8000/EGMS_L3_E{e}N{n}_100km_{d}_{year}_1.zip?id={id}'
package main

import (
	"archive/zip"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"strconv"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/fsutil"
)

const tileSize = 100_000 // metres

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory for the generated archives")
	minE := flag.Int("min-e", 43, "westernmost tile east index")
	maxE := flag.Int("max-e", 43, "easternmost tile east index")
	minN := flag.Int("min-n", 32, "southernmost tile north index")
	maxN := flag.Int("max-n", 32, "northernmost tile north index")
	disp := flag.String("displacement", "both", "displacement component: E, U or both")
	year := flag.String("year", "2019_2023", "release year range")
	points := flag.Int("points", 100, "points per archive")
	seed := flag.Uint64("seed", 1, "random seed for reproducible output")
	flag.Parse()

	ds, err := domain.ParseDisplacements(*disp)
	if err != nil {
		return err
	}
	yr, err := domain.ParseYearRange(*year)
	if err != nil {
		return err
	}
	region := domain.Region{MinE: *minE, MaxE: *maxE, MinN: *minN, MaxN: *maxN}
	tasks, err := domain.EnumerateTasks(region, ds, yr, "")
	if err != nil {
		return err
	}
	if *points < 0 {
		return fmt.Errorf("points must not be negative")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	for _, task := range tasks {
		path, err := writeArchive(*out, task, *points, rng)
		if err != nil {
			return fmt.Errorf("writing %s: %w", task, err)
		}
		log.Printf("%s: %d points -> %s", task, *points, path)
	}
	log.Printf("total: %d archives", len(tasks))
	return nil
}

func writeArchive(dir string, task domain.DownloadTask, points int, rng *rand.Rand) (string, error) {
	pf, err := fsutil.Create(dir, task.ArchiveName()+".zip")
	if err != nil {
		return "", err
	}
	defer pf.Abort()

	zw := zip.NewWriter(pf)
	entry, err := zw.Create(task.ArchiveName() + ".csv")
	if err != nil {
		return "", err
	}
	if err := writePoints(entry, task, points, rng); err != nil {
		return "", err
	}
	// Real archives also carry metadata next to the CSV.
	meta, err := zw.Create("EGMS_L3_metadata.xml")
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(meta, "<product tile=%q displacement=%q/>\n", task.Tile.Code(), task.Displacement); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	if err := pf.Commit(); err != nil {
		return "", err
	}
	return pf.Path(), nil
}

func writePoints(w io.Writer, task domain.DownloadTask, points int, rng *rand.Rand) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"pid", "mp_type", "easting", "northing", "height", "rmse", "mean_velocity", "acceleration"}); err != nil {
		return err
	}
	baseE := float64(task.Tile.E() * tileSize)
	baseN := float64(task.Tile.N() * tileSize)
	for i := range points {
		row := []string{
			fmt.Sprintf("%s%s%06d", task.Tile.Code(), task.Displacement, i),
			"L3",
			strconv.FormatFloat(baseE+rng.Float64()*tileSize, 'f', 1, 64),
			strconv.FormatFloat(baseN+rng.Float64()*tileSize, 'f', 1, 64),
			strconv.FormatFloat(rng.Float64()*800, 'f', 1, 64),
			strconv.FormatFloat(rng.Float64()*2, 'f', 2, 64),
			strconv.FormatFloat(rng.NormFloat64()*3, 'f', 2, 64),
			strconv.FormatFloat(rng.NormFloat64()*0.5, 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
