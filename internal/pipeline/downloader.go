package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/couchcryptid/egms-etl-service/internal/ratelimit"
	"github.com/jonboulle/clockwork"
)

// Fetcher downloads and extracts one archive. It reports every failure through
// the outcome status and never retries on its own.
type Fetcher interface {
	Fetch(ctx context.Context, task domain.DownloadTask) domain.DownloadOutcome
}

// Limiter spaces calls to a named external service.
type Limiter interface {
	Wait(ctx context.Context, service string) error
}

// DownloadRequest describes a grid download.
type DownloadRequest struct {
	Region        domain.Region
	Displacements []domain.DisplacementType
	Year          domain.YearRange
	Credential    domain.ArchiveCredential
}

// Downloader walks a tile grid and fetches every task in order.
type Downloader struct {
	fetcher Fetcher
	limiter Limiter
	retry   RetryPolicy
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDownloader creates a Downloader. Every attempt, including retries, waits
// on the archive rate limit.
func NewDownloader(f Fetcher, l Limiter, retry RetryPolicy, metrics *observability.Metrics, logger *slog.Logger) *Downloader {
	return &Downloader{
		fetcher: f,
		limiter: l,
		retry:   retry,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// Run attempts every task of the request and returns one outcome per task, in
// enumeration order. Individual failures never stop the batch. If ctx is
// canceled the remaining tasks are reported as network errors without being
// requested. The only error returned is for an invalid request.
func (d *Downloader) Run(ctx context.Context, req DownloadRequest, progress domain.ProgressFunc) ([]domain.DownloadOutcome, error) {
	tasks, err := domain.EnumerateTasks(req.Region, req.Displacements, req.Year, req.Credential)
	if err != nil {
		return nil, fmt.Errorf("invalid download request: %w", err)
	}

	d.logger.Info("download started",
		"tasks", len(tasks),
		"region", fmt.Sprintf("E%d-%d N%d-%d", req.Region.MinE, req.Region.MaxE, req.Region.MinN, req.Region.MaxN),
		"year", req.Year,
	)
	outcomes := make([]domain.DownloadOutcome, 0, len(tasks))
	for i, task := range tasks {
		progress.Report(domain.Progress{Completed: i, Total: len(tasks), Status: "Downloading " + task.String() + "..."})
		out := d.runTask(ctx, task)
		outcomes = append(outcomes, out)
		d.record(task, out)
		progress.Report(domain.Progress{Completed: i + 1, Total: len(tasks), Status: out.Message()})
	}

	if len(tasks) == 0 {
		progress.Report(domain.Progress{Total: 0, Status: "Nothing to download"})
	}
	summary := domain.Summarize(outcomes)
	d.logger.Info("download finished", "total", summary.Total, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return outcomes, nil
}

// runTask performs the first attempt and any retries of a transient failure.
func (d *Downloader) runTask(ctx context.Context, task domain.DownloadTask) domain.DownloadOutcome {
	backoff := d.retry.Backoff
	var out domain.DownloadOutcome
	for attempt := 1; attempt <= d.retry.attempts(); attempt++ {
		if err := d.limiter.Wait(ctx, ratelimit.ServiceArchive); err != nil {
			out = domain.NewOutcome(task, domain.StatusNetworkError)
			out.Error = err.Error()
			out.Attempts = attempt - 1
			return out
		}

		start := time.Now()
		out = d.fetcher.Fetch(ctx, task)
		out.Attempts = attempt
		d.metrics.DownloadAttempts.Inc()
		d.metrics.DownloadDuration.Observe(time.Since(start).Seconds())

		if !out.Transient() || attempt == d.retry.attempts() || ctx.Err() != nil {
			return out
		}
		d.logger.Warn("transient download failure, retrying",
			"task", task.String(), "attempt", attempt, "backoff", backoff, "status", out.Status, "error", out.Error)
		if !sleepWithContext(ctx, d.clock, backoff) {
			return out
		}
		backoff = nextBackoff(backoff, d.retry.MaxBackoff)
	}
	return out
}

func (d *Downloader) record(task domain.DownloadTask, out domain.DownloadOutcome) {
	d.metrics.DownloadOutcomes.WithLabelValues(string(out.Status)).Inc()
	if out.OK() {
		d.metrics.DownloadBytes.Add(float64(out.Bytes))
		d.logger.Info("archive extracted", "task", task.String(), "path", out.ExtractedPath, "attempts", out.Attempts)
		return
	}
	d.logger.Warn("archive download failed",
		"task", task.String(), "status", out.Status, "http_status", out.HTTPStatus, "error", out.Error, "attempts", out.Attempts)
}
