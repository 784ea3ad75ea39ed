package egms

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTemplate = "/download/EGMS_L3_E{e}N{n}_100km_{d}_{year}_1.zip?id={id}"
	testCSV      = "pid,easting,northing\nA1,4000000,3000000\n"
)

func testTask(t *testing.T) domain.DownloadTask {
	t.Helper()
	tile, err := domain.NewTileCoordinate(32, 31)
	require.NoError(t, err)
	return domain.DownloadTask{
		Tile:         tile,
		Displacement: domain.DisplacementVertical,
		Year:         "2019_2023",
		Credential:   "secret",
	}
}

func testClient(serverURL, dir string) *Client {
	return NewClient(serverURL+testTemplate, dir, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serveBytes(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_URL(t *testing.T) {
	c := NewClient("https://host/EGMS_L3_E{e}N{n}_100km_{d}_{year}_1.zip?id={id}", t.TempDir(), time.Second, slog.Default())
	task := testTask(t)
	task.Credential = "a b&c"

	assert.Equal(t, "https://host/EGMS_L3_E32N31_100km_U_2019_2023_1.zip?id=a+b%26c", c.URL(task))
}

func TestClient_Fetch_Success(t *testing.T) {
	var gotPath, gotID string
	archive := buildZip(t, map[string]string{
		"readme.txt": "ignore me",
		"EGMS_L3_E32N31_100km_U_2019_2023_1/EGMS_L3_E32N31_100km_U_2019_2023_1.csv": testCSV,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("id")
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "Point_downloads")
	out := testClient(srv.URL, dir).Fetch(context.Background(), testTask(t))

	require.True(t, out.OK(), out.Message())
	assert.Equal(t, "/download/EGMS_L3_E32N31_100km_U_2019_2023_1.zip", gotPath)
	assert.Equal(t, "secret", gotID)
	assert.Equal(t, "E32N31", out.TileCode)
	assert.Equal(t, domain.DisplacementVertical, out.Displacement)
	assert.Equal(t, "EGMS_L3_E32N31_100km_U_2019_2023_1.csv", out.EntryName)
	assert.Equal(t, filepath.Join(dir, out.EntryName), out.ExtractedPath)
	assert.EqualValues(t, len(testCSV), out.Bytes)
	assert.Equal(t, "Extracted EGMS_L3_E32N31_100km_U_2019_2023_1.csv", out.Message())

	data, err := os.ReadFile(out.ExtractedPath)
	require.NoError(t, err)
	assert.Equal(t, testCSV, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClient_Fetch_HTTPFailure(t *testing.T) {
	srv := serveBytes(t, http.StatusNotFound, []byte("not found"))
	dir := filepath.Join(t.TempDir(), "out")

	out := testClient(srv.URL, dir).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusHTTPFailure, out.Status)
	assert.Equal(t, http.StatusNotFound, out.HTTPStatus)
	assert.False(t, out.Transient())
	assert.Equal(t, "Failed to download E32N31 U (HTTP 404)", out.Message())
	assert.NoDirExists(t, dir)
}

func TestClient_Fetch_ServerErrorIsTransient(t *testing.T) {
	srv := serveBytes(t, http.StatusServiceUnavailable, nil)

	out := testClient(srv.URL, t.TempDir()).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusHTTPFailure, out.Status)
	assert.True(t, out.Transient())
}

func TestClient_Fetch_NoMatchingFile(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"EGMS_L3_E32N31_100km_E_2019_2023_1.csv": testCSV,
		"EGMS_L3_E32N31_100km_U_2019_2023_1.xml": "<meta/>",
	})
	srv := serveBytes(t, http.StatusOK, archive)
	dir := t.TempDir()

	out := testClient(srv.URL, dir).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusNoMatchingFile, out.Status)
	assert.Equal(t, "No matching CSV found in the downloaded zip for E32N31 U", out.Message())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_Fetch_CSVSuffixIsCaseSensitive(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"EGMS_L3_E32N31_100km_U_2019_2023_1.CSV": testCSV,
	})
	srv := serveBytes(t, http.StatusOK, archive)

	out := testClient(srv.URL, t.TempDir()).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusNoMatchingFile, out.Status)
}

func TestClient_Fetch_CorruptArchive(t *testing.T) {
	srv := serveBytes(t, http.StatusOK, []byte("<html>maintenance</html>"))
	dir := t.TempDir()

	out := testClient(srv.URL, dir).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusExtractFailure, out.Status)
	assert.Contains(t, out.Error, "open archive")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_Fetch_EntryNameCannotEscapeOutputDir(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"../../EGMS_L3_E32N31_100km_U_2019_2023_1.csv": testCSV,
	})
	srv := serveBytes(t, http.StatusOK, archive)
	dir := filepath.Join(t.TempDir(), "a", "b")

	out := testClient(srv.URL, dir).Fetch(context.Background(), testTask(t))

	require.True(t, out.OK(), out.Message())
	assert.Equal(t, filepath.Join(dir, "EGMS_L3_E32N31_100km_U_2019_2023_1.csv"), out.ExtractedPath)
}

func TestClient_Fetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	out := testClient(srv.URL, t.TempDir()).Fetch(context.Background(), testTask(t))

	assert.Equal(t, domain.StatusNetworkError, out.Status)
	assert.True(t, out.Transient())
	assert.Contains(t, out.Message(), "Error downloading E32N31 U:")
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := testClient(srv.URL, t.TempDir())
	c.httpClient.Timeout = 50 * time.Millisecond

	out := c.Fetch(context.Background(), testTask(t))
	assert.Equal(t, domain.StatusNetworkError, out.Status)
}
