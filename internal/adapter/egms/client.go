// Package egms fetches EGMS Ortho (L3) archives and extracts the point CSV
// they contain.
package egms

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/fsutil"
)

// Client issues one archive request per task. It never retries; callers decide
// what to do with transient outcomes.
type Client struct {
	urlTemplate string
	outputDir   string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates an archive client. urlTemplate holds {e}, {n}, {d}, {year}
// and {id} placeholders; extracted files are written to outputDir.
func NewClient(urlTemplate, outputDir string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		urlTemplate: urlTemplate,
		outputDir:   outputDir,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// URL renders the request target for a task.
func (c *Client) URL(task domain.DownloadTask) string {
	r := strings.NewReplacer(
		"{e}", strconv.Itoa(task.Tile.E()),
		"{n}", strconv.Itoa(task.Tile.N()),
		"{d}", string(task.Displacement),
		"{year}", string(task.Year),
		"{id}", url.QueryEscape(string(task.Credential)),
	)
	return r.Replace(c.urlTemplate)
}

// Fetch downloads the archive for task and extracts its matching CSV. Every
// failure is reported through the outcome's status.
func (c *Client) Fetch(ctx context.Context, task domain.DownloadTask) domain.DownloadOutcome {
	out := domain.NewOutcome(task, domain.StatusSuccess)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(task), nil)
	if err != nil {
		out.Status = domain.StatusNetworkError
		out.Error = fmt.Sprintf("create request: %v", err)
		return out
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out.Status = domain.StatusNetworkError
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		out.Status = domain.StatusHTTPFailure
		out.HTTPStatus = resp.StatusCode
		return out
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Status = domain.StatusNetworkError
		out.Error = fmt.Sprintf("read body: %v", err)
		return out
	}

	// Entry names are reduced to their base name below, so non-local paths are harmless.
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		out.Status = domain.StatusExtractFailure
		out.Error = fmt.Sprintf("open archive: %v", err)
		return out
	}

	entry := findEntry(zr, task.ArchiveName())
	if entry == nil {
		out.Status = domain.StatusNoMatchingFile
		c.logger.Debug("no matching entry", "task", task.String(), "entries", len(zr.File))
		return out
	}

	name := path.Base(entry.Name)
	n, err := extract(entry, c.outputDir, name)
	if err != nil {
		out.Status = domain.StatusExtractFailure
		out.Error = err.Error()
		return out
	}

	out.EntryName = name
	out.ExtractedPath = filepath.Join(c.outputDir, name)
	out.Bytes = n
	c.logger.Debug("archive entry extracted", "task", task.String(), "entry", name, "bytes", n)
	return out
}

// findEntry returns the first regular file ending in .csv whose name contains fragment.
func findEntry(zr *zip.Reader, fragment string) *zip.File {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name, ".csv") && strings.Contains(f.Name, fragment) {
			return f
		}
	}
	return nil
}

func extract(f *zip.File, dir, name string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	return fsutil.WriteFrom(dir, name, rc)
}
