package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/config"
	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGlobals(t *testing.T) *globals {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return &globals{
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.NewMetricsForTesting(),
	}
}

func parseDownload(t *testing.T, args ...string) (*downloadFlags, *cobra.Command) {
	t.Helper()
	cmd := &cobra.Command{Use: "download"}
	f := bindDownloadFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return f, cmd
}

func TestDownloadRequest_Region(t *testing.T) {
	g := testGlobals(t)
	f, cmd := parseDownload(t, "--min-e", "32", "--max-e", "33", "--min-n", "26", "--max-n", "27")

	req, err := f.request(cmd, g)
	require.NoError(t, err)

	assert.Equal(t, domain.Region{MinE: 32, MaxE: 33, MinN: 26, MaxN: 27}, req.Region)
	assert.Equal(t, domain.AllDisplacements, req.Displacements)
	assert.Equal(t, domain.YearRange(g.cfg.DefaultYear), req.Year)
	assert.Equal(t, domain.ArchiveCredential(g.cfg.ArchiveID), req.Credential)
}

func TestDownloadRequest_SingleTileAndOverrides(t *testing.T) {
	g := testGlobals(t)
	f, cmd := parseDownload(t,
		"--e", "43", "--n", "32",
		"--displacement", "U",
		"--year", "2020_2024",
		"--id", "token",
		"--dir", "/tmp/zips",
		"--delay", "0s",
		"--retries", "4",
	)

	req, err := f.request(cmd, g)
	require.NoError(t, err)

	assert.Equal(t, domain.SingleTile(43, 32), req.Region)
	assert.Equal(t, []domain.DisplacementType{domain.DisplacementVertical}, req.Displacements)
	assert.Equal(t, domain.YearRange("2020_2024"), req.Year)
	assert.Equal(t, domain.ArchiveCredential("token"), req.Credential)
	assert.Equal(t, "/tmp/zips", g.cfg.DownloadDir)
	assert.Equal(t, time.Duration(0), g.cfg.DownloadDelay)
	assert.Equal(t, 4, g.cfg.DownloadMaxRetries)
}

func TestDownloadRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"out of grid", []string{"--e", "5", "--n", "32"}},
		{"inverted region", []string{"--min-e", "40", "--max-e", "30", "--min-n", "20", "--max-n", "21"}},
		{"bad displacement", []string{"--e", "43", "--n", "32", "--displacement", "N"}},
		{"bad year", []string{"--e", "43", "--n", "32", "--year", "2015_2019"}},
		{"negative retries", []string{"--e", "43", "--n", "32", "--retries", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, cmd := parseDownload(t, tt.args...)
			_, err := f.request(cmd, testGlobals(t))
			assert.Error(t, err)
		})
	}
}

func TestReportDownloads(t *testing.T) {
	tile, err := domain.NewTileCoordinate(43, 32)
	require.NoError(t, err)
	ok := domain.NewOutcome(domain.DownloadTask{Tile: tile, Displacement: domain.DisplacementEastWest}, domain.StatusSuccess)
	failed := domain.NewOutcome(domain.DownloadTask{Tile: tile, Displacement: domain.DisplacementVertical}, domain.StatusHTTPFailure)
	failed.HTTPStatus = 404

	var buf bytes.Buffer
	err = reportDownloads(&buf, []domain.DownloadOutcome{ok, failed})

	require.Error(t, err)
	assert.Contains(t, buf.String(), "Failed to download E43N32 U (HTTP 404)")
	assert.Contains(t, buf.String(), "Downloaded 1/2 archives")

	buf.Reset()
	require.NoError(t, reportDownloads(&buf, []domain.DownloadOutcome{ok}))
	assert.Equal(t, "Downloaded 1/1 archives\n", buf.String())
}

func TestEnrichInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.CSV", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	inputs, err := enrichInputs(nil, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.CSV"), filepath.Join(dir, "b.csv")}, inputs)

	explicit, err := enrichInputs([]string{"x.csv"}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.csv"}, explicit)

	_, err = enrichInputs(nil, t.TempDir())
	assert.Error(t, err)
}

func TestEnrichFlags_Apply(t *testing.T) {
	g := testGlobals(t)
	cmd := &cobra.Command{Use: "enrich"}
	f := bindEnrichFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--provider", "NONE", "--out-dir", "/tmp/out", "--delay", "2s", "--cache-db", "/tmp/c.db"}))

	f.apply(cmd, g)

	assert.Equal(t, config.ProviderNone, g.cfg.GeocoderProvider)
	assert.Equal(t, "/tmp/out", g.cfg.EnrichedDir)
	assert.Equal(t, 2*time.Second, g.cfg.GeocodeDelay)
	assert.Equal(t, "/tmp/c.db", g.cfg.GeocodeCacheDB)
	assert.Equal(t, 3*time.Second, g.cfg.DownloadDelay, "untouched settings keep their defaults")
}

func TestProgressRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newProgressRenderer(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.Report(domain.Progress{Completed: 0, Total: 2, Status: "Downloading E43N32 E..."})
	r.Report(domain.Progress{Completed: 1, Total: 2, Status: "Extracted a.csv"})
	r.Report(domain.Progress{Completed: 2, Total: 2, Status: "Extracted b.csv"})
	r.Finish()

	assert.Contains(t, buf.String(), "2/2")

	buf.Reset()
	empty := newProgressRenderer(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	empty.Report(domain.Progress{Total: 0, Status: "Nothing to do"})
	empty.Finish()
	assert.Equal(t, "Nothing to do\n", buf.String())
}

func TestNewApp_NoGeocoderNoCache(t *testing.T) {
	g := testGlobals(t)
	g.cfg.GeocoderProvider = config.ProviderNone
	g.cfg.GeocodeCacheDB = filepath.Join(t.TempDir(), "unused.db")

	a, err := newApp(t.Context(), g)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.cache, "cache is skipped when geocoding is disabled")
	assert.Nil(t, a.sink())
	assert.Nil(t, a.geocoder())
}

func TestNewApp_WithCache(t *testing.T) {
	g := testGlobals(t)
	g.cfg.GeocodeCacheDB = filepath.Join(t.TempDir(), "geocode.db")

	a, err := newApp(t.Context(), g)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.cache)
	assert.NotNil(t, a.geocoder())
}
