package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/jobs"
	"github.com/couchcryptid/egms-etl-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobService queues batches and reports on them.
type JobService interface {
	SubmitDownload(req pipeline.DownloadRequest) (jobs.Job, error)
	SubmitEnrichment(inputPath string) (jobs.Job, error)
	Get(id string) (jobs.Job, error)
	List() []jobs.Job
	CheckReadiness(ctx context.Context) error
}

// Defaults fill in request fields the caller leaves empty.
type Defaults struct {
	Year        domain.YearRange
	Credential  domain.ArchiveCredential
	DownloadDir string
}

// Server exposes health, readiness, metrics and the job API.
type Server struct {
	httpServer *http.Server
	jobs       JobService
	defaults   Defaults
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and /v1 routes.
func NewServer(addr string, svc JobService, defaults Defaults, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		jobs:     svc,
		defaults: defaults,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/downloads", s.handleDownload)
	mux.HandleFunc("POST /v1/enrichments", s.handleEnrichment)
	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.jobs.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// downloadBody is the POST /v1/downloads payload. Either the region bounds or
// e/n for a single tile must be given.
type downloadBody struct {
	MinE         *int   `json:"min_e"`
	MaxE         *int   `json:"max_e"`
	MinN         *int   `json:"min_n"`
	MaxN         *int   `json:"max_n"`
	E            *int   `json:"e"`
	N            *int   `json:"n"`
	Displacement string `json:"displacement"`
	Year         string `json:"year"`
	ID           string `json:"id"`
}

func (b downloadBody) request(defaults Defaults) (pipeline.DownloadRequest, error) {
	var region domain.Region
	switch {
	case b.E != nil && b.N != nil:
		region = domain.SingleTile(*b.E, *b.N)
	case b.MinE != nil && b.MaxE != nil && b.MinN != nil && b.MaxN != nil:
		region = domain.Region{MinE: *b.MinE, MaxE: *b.MaxE, MinN: *b.MinN, MaxN: *b.MaxN}
	default:
		return pipeline.DownloadRequest{}, errors.New("either e and n, or min_e, max_e, min_n and max_n are required")
	}

	disp := b.Displacement
	if disp == "" {
		disp = "both"
	}
	ds, err := domain.ParseDisplacements(disp)
	if err != nil {
		return pipeline.DownloadRequest{}, err
	}

	year := defaults.Year
	if b.Year != "" {
		if year, err = domain.ParseYearRange(b.Year); err != nil {
			return pipeline.DownloadRequest{}, err
		}
	}
	cred := defaults.Credential
	if b.ID != "" {
		cred = domain.ArchiveCredential(b.ID)
	}
	return pipeline.DownloadRequest{Region: region, Displacements: ds, Year: year, Credential: cred}, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.request(s.defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.SubmitDownload(req)
	s.writeSubmitted(w, job, err)
}

type enrichmentBody struct {
	File string `json:"file"`
}

func (s *Server) handleEnrichment(w http.ResponseWriter, r *http.Request) {
	var body enrichmentBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	path, err := s.resolveInput(body.File)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.SubmitEnrichment(path)
	s.writeSubmitted(w, job, err)
}

// resolveInput maps a file name onto the download directory. Only plain CSV
// names are accepted so requests cannot reach outside that directory.
func (s *Server) resolveInput(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("file is required")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("file %q must be a plain file name inside the download directory", name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return "", fmt.Errorf("file %q is not a CSV file", name)
	}
	path := filepath.Join(s.defaults.DownloadDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file %q not found in the download directory", name)
	}
	return path, nil
}

func (s *Server) writeSubmitted(w http.ResponseWriter, job jobs.Job, err error) {
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
	default:
		w.Header().Set("Location", "/v1/jobs/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
