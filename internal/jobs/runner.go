// Package jobs queues download and enrichment batches submitted over HTTP and
// runs them one at a time, in submission order, on a single worker.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/couchcryptid/egms-etl-service/internal/pipeline"
	"github.com/google/uuid"
)

// Kind is the type of batch a job runs.
type Kind string

const (
	KindDownload   Kind = "download"
	KindEnrichment Kind = "enrichment"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	// ErrQueueFull is returned when the pending queue has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")
)

// publishTimeout bounds outcome publishing after a job ends.
const publishTimeout = 10 * time.Second

// Job is a snapshot of a submitted batch.
type Job struct {
	ID         string                   `json:"id"`
	Kind       Kind                     `json:"kind"`
	State      State                    `json:"state"`
	Progress   domain.Progress          `json:"progress"`
	Fraction   float64                  `json:"fraction"`
	Downloads  []domain.DownloadOutcome `json:"downloads,omitempty"`
	Summary    *domain.DownloadSummary  `json:"summary,omitempty"`
	Enrichment *domain.EnrichmentResult `json:"enrichment,omitempty"`
	Error      string                   `json:"error,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	StartedAt  *time.Time               `json:"started_at,omitempty"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

// Downloader runs a grid download.
type Downloader interface {
	Run(ctx context.Context, req pipeline.DownloadRequest, progress domain.ProgressFunc) ([]domain.DownloadOutcome, error)
}

// Enricher runs a file enrichment.
type Enricher interface {
	Enrich(ctx context.Context, inputPath string, progress domain.ProgressFunc) (domain.EnrichmentResult, error)
}

type work struct {
	id       string
	download *pipeline.DownloadRequest
	input    string
}

// Runner owns the job table and the single worker.
type Runner struct {
	downloader Downloader
	enricher   Enricher
	sink       pipeline.EventSink // nil when events are disabled
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu    sync.RWMutex
	jobs  map[string]*Job
	queue chan work

	started atomic.Bool
}

// NewRunner creates a Runner with room for queueSize pending jobs. sink may be nil.
func NewRunner(d Downloader, e Enricher, sink pipeline.EventSink, queueSize int, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		downloader: d,
		enricher:   e,
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
		jobs:       make(map[string]*Job),
		queue:      make(chan work, queueSize),
	}
}

// SubmitDownload validates and enqueues a grid download.
func (r *Runner) SubmitDownload(req pipeline.DownloadRequest) (Job, error) {
	if _, err := domain.EnumerateTasks(req.Region, req.Displacements, req.Year, req.Credential); err != nil {
		return Job{}, err
	}
	return r.submit(KindDownload, work{download: &req})
}

// SubmitEnrichment enqueues the enrichment of inputPath.
func (r *Runner) SubmitEnrichment(inputPath string) (Job, error) {
	return r.submit(KindEnrichment, work{input: inputPath})
}

func (r *Runner) submit(kind Kind, w work) (Job, error) {
	w.id = uuid.NewString()
	job := &Job{ID: w.id, Kind: kind, State: StateQueued, CreatedAt: domain.Now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case r.queue <- w:
	default:
		return Job{}, ErrQueueFull
	}
	r.jobs[w.id] = job
	r.logger.Info("job queued", "job_id", w.id, "kind", kind)
	return snapshot(job), nil
}

// Get returns the current snapshot of a job.
func (r *Runner) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return snapshot(job), nil
}

// List returns all jobs, oldest first.
func (r *Runner) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, snapshot(job))
	}
	slices.SortFunc(out, func(a, b Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// CheckReadiness returns nil once the worker is accepting jobs.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.started.Load() {
		return errors.New("job worker has not started")
	}
	return nil
}

// Run processes queued jobs until ctx is canceled. The job in flight when ctx
// ends is marked failed; jobs still queued stay queued.
func (r *Runner) Run(ctx context.Context) error {
	r.started.Store(true)
	defer r.started.Store(false)
	r.logger.Info("job worker started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job worker stopping", "reason", ctx.Err())
			return nil
		case w := <-r.queue:
			r.execute(ctx, w)
		}
	}
}

func (r *Runner) execute(ctx context.Context, w work) {
	kind := KindEnrichment
	if w.download != nil {
		kind = KindDownload
	}
	r.update(w.id, func(j *Job) {
		now := domain.Now().UTC()
		j.State = StateRunning
		j.StartedAt = &now
	})
	r.metrics.JobsRunning.Set(1)
	defer r.metrics.JobsRunning.Set(0)

	progress := func(p domain.Progress) {
		r.update(w.id, func(j *Job) { j.Progress = p })
	}

	var (
		events []domain.OutcomeEvent
		err    error
	)
	switch kind {
	case KindDownload:
		var outcomes []domain.DownloadOutcome
		outcomes, err = r.downloader.Run(ctx, *w.download, progress)
		if err == nil {
			summary := domain.Summarize(outcomes)
			r.update(w.id, func(j *Job) {
				j.Downloads = outcomes
				j.Summary = &summary
			})
			events = domain.NewDownloadEvents(w.id, outcomes)
		}
	case KindEnrichment:
		var result domain.EnrichmentResult
		result, err = r.enricher.Enrich(ctx, w.input, progress)
		if err == nil {
			r.update(w.id, func(j *Job) { j.Enrichment = &result })
			events = []domain.OutcomeEvent{domain.NewEnrichmentEvent(w.id, result)}
		}
	}

	state := StateSucceeded
	if err != nil {
		state = StateFailed
		r.logger.Error("job failed", "job_id", w.id, "kind", kind, "error", err)
	} else {
		r.logger.Info("job finished", "job_id", w.id, "kind", kind)
	}
	r.update(w.id, func(j *Job) {
		now := domain.Now().UTC()
		j.State = state
		j.FinishedAt = &now
		if err != nil {
			j.Error = err.Error()
		}
	})
	r.metrics.JobsCompleted.WithLabelValues(string(kind), string(state)).Inc()

	r.publish(ctx, w.id, events)
}

func (r *Runner) publish(ctx context.Context, id string, events []domain.OutcomeEvent) {
	if r.sink == nil || len(events) == 0 {
		return
	}
	// The worker ctx is canceled on shutdown; the finished job's events still go out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.sink.Publish(pubCtx, events); err != nil {
		r.logger.Warn("publish outcome events failed", "job_id", id, "events", len(events), "error", err)
	}
}

func (r *Runner) update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// snapshot deep-copies a job for callers outside the lock.
func snapshot(j *Job) Job {
	out := *j
	out.Fraction = j.Progress.Fraction()
	if j.State == StateQueued {
		out.Fraction = 0
	}
	out.Downloads = slices.Clone(j.Downloads)
	if j.Summary != nil {
		s := *j.Summary
		s.ByStatus = make(map[domain.DownloadStatus]int, len(j.Summary.ByStatus))
		for k, v := range j.Summary.ByStatus {
			s.ByStatus[k] = v
		}
		out.Summary = &s
	}
	if j.Enrichment != nil {
		e := *j.Enrichment
		out.Enrichment = &e
	}
	return out
}
