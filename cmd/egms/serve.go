package main

import (
	"context"
	"errors"
	"net/http"

	httpadapter "github.com/couchcryptid/egms-etl-service/internal/adapter/http"
	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/jobs"
	"github.com/spf13/cobra"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		addr      string
		queueSize int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job service",
		Long: `Serve accepts download and enrichment jobs over HTTP and runs them one at a
time in submission order. Health, readiness and Prometheus metrics are exposed
alongside the job API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				g.cfg.HTTPAddr = addr
			}
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context(), queueSize)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides HTTP_ADDR")
	cmd.Flags().IntVar(&queueSize, "queue-size", 16, "maximum number of pending jobs")
	return cmd
}

func (a *app) serve(ctx context.Context, queueSize int) error {
	year, err := domain.ParseYearRange(a.cfg.DefaultYear)
	if err != nil {
		return err
	}

	runner := jobs.NewRunner(a.downloader(), a.enricher(), a.sink(), queueSize, a.metrics, a.logger)
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, runner, httpadapter.Defaults{
		Year:        year,
		Credential:  domain.ArchiveCredential(a.cfg.ArchiveID),
		DownloadDir: a.cfg.DownloadDir,
	}, a.logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	// Start job worker.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("job runner error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("job runner did not stop before shutdown timeout")
	}

	a.logger.Info("shutdown complete")
	return nil
}
