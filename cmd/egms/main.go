// Command egms downloads EGMS ground-motion tiles and enriches their point
// CSVs with place names. It also runs as an HTTP job service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/egms-etl-service/internal/config"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	"github.com/spf13/cobra"
)

// globals is the state shared by every subcommand, filled in by the root
// command's pre-run hook.
type globals struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "egms",
		Short: "EGMS ground-motion tile downloader and point enrichment",
		Long: `egms fetches European Ground Motion Service L3 tiles for a grid of
100 km tiles, extracts their point CSVs, and enriches every point with a
reverse-geocoded place name.

Configuration comes from environment variables; flags override them per run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.init()
		},
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format (json, text); overrides LOG_FORMAT")

	root.AddCommand(downloadCmd(g))
	root.AddCommand(enrichCmd(g))
	root.AddCommand(serveCmd(g))
	return root
}

func (g *globals) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	g.cfg = cfg
	g.logger = observability.NewLogger(cfg)
	g.metrics = observability.NewMetrics()
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
