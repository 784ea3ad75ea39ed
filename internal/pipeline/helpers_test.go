package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
)

// --- mocks ---

// scriptedFetcher returns queued outcomes per task, falling back to success.
type scriptedFetcher struct {
	mu      sync.Mutex
	script  map[string][]domain.DownloadOutcome
	fetched []string
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{script: make(map[string][]domain.DownloadOutcome)}
}

func (f *scriptedFetcher) on(task string, statuses ...domain.DownloadOutcome) {
	f.script[task] = append(f.script[task], statuses...)
}

func (f *scriptedFetcher) Fetch(_ context.Context, task domain.DownloadTask) domain.DownloadOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := task.String()
	f.fetched = append(f.fetched, key)
	if queue := f.script[key]; len(queue) > 0 {
		out := queue[0]
		f.script[key] = queue[1:]
		out.TileCode = task.Tile.Code()
		out.Displacement = task.Displacement
		return out
	}
	out := domain.NewOutcome(task, domain.StatusSuccess)
	out.EntryName = task.ArchiveName() + ".csv"
	return out
}

func httpFailure(code int) domain.DownloadOutcome {
	return domain.DownloadOutcome{Status: domain.StatusHTTPFailure, HTTPStatus: code}
}

// recordingLimiter counts waits per service and honors cancellation.
type recordingLimiter struct {
	mu    sync.Mutex
	waits map[string]int
}

func newRecordingLimiter() *recordingLimiter {
	return &recordingLimiter{waits: make(map[string]int)}
}

func (l *recordingLimiter) Wait(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits[service]++
	return nil
}

func (l *recordingLimiter) count(service string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits[service]
}

// funcGeocoder adapts a function to domain.ReverseGeocoder and counts calls.
type funcGeocoder struct {
	mu    sync.Mutex
	calls int
	fn    func(lat, lon float64) (domain.Address, error)
}

func (g *funcGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.Address, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.fn(lat, lon)
}

func (g *funcGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var (
	errThrottled = &domain.ProviderError{Provider: "test", StatusCode: 429}
	errForbidden = &domain.ProviderError{Provider: "test", StatusCode: 403}
	errBroken    = errors.New("malformed reply")
)

// progressRecorder collects snapshots.
type progressRecorder struct {
	snapshots []domain.Progress
}

func (r *progressRecorder) fn() domain.ProgressFunc {
	return func(p domain.Progress) { r.snapshots = append(r.snapshots, p) }
}

func (r *progressRecorder) last() domain.Progress {
	if len(r.snapshots) == 0 {
		return domain.Progress{}
	}
	return r.snapshots[len(r.snapshots)-1]
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
