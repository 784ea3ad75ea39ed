package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/pipeline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type downloadFlags struct {
	minE, maxE, minN, maxN int
	e, n                   int
	displacement           string
	year                   string
	id                     string
	dir                    string
	delay                  time.Duration
	retries                int
}

func downloadCmd(g *globals) *cobra.Command {
	var f *downloadFlags

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and extract EGMS tiles for a grid region",
		Long: `Download walks every tile in the inclusive region, west to east and south to
north within each column, fetching the requested displacement components one archive at
a time and extracting the matching point CSV into the download directory.`,
		Example: `  egms download --min-e 32 --max-e 33 --min-n 26 --max-n 27 --displacement both
  egms download --e 43 --n 32 --displacement U --year 2020_2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(cmd, g)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			bar := newProgressRenderer(out, g.logger)
			outcomes, err := a.downloader().Run(cmd.Context(), req, bar.Report)
			bar.Finish()
			if err != nil {
				return err
			}
			a.publish(cmd.Context(), domain.NewDownloadEvents(uuid.NewString(), outcomes))
			return reportDownloads(out, outcomes)
		},
	}

	f = bindDownloadFlags(cmd)
	return cmd
}

func bindDownloadFlags(cmd *cobra.Command) *downloadFlags {
	f := &downloadFlags{}
	fl := cmd.Flags()
	fl.IntVar(&f.minE, "min-e", 0, "westernmost tile east index")
	fl.IntVar(&f.maxE, "max-e", 0, "easternmost tile east index")
	fl.IntVar(&f.minN, "min-n", 0, "southernmost tile north index")
	fl.IntVar(&f.maxN, "max-n", 0, "northernmost tile north index")
	fl.IntVar(&f.e, "e", 0, "east index of a single tile")
	fl.IntVar(&f.n, "n", 0, "north index of a single tile")
	fl.StringVar(&f.displacement, "displacement", "both", "displacement component: E, U or both")
	fl.StringVar(&f.year, "year", "", "release year range; overrides EGMS_DEFAULT_YEAR")
	fl.StringVar(&f.id, "id", "", "archive credential id; overrides EGMS_ARCHIVE_ID")
	fl.StringVar(&f.dir, "dir", "", "download directory; overrides EGMS_DOWNLOAD_DIR")
	fl.DurationVar(&f.delay, "delay", 0, "minimum delay between archive requests; overrides EGMS_DOWNLOAD_DELAY")
	fl.IntVar(&f.retries, "retries", 0, "retries for transient failures; overrides EGMS_DOWNLOAD_MAX_RETRIES")

	cmd.MarkFlagsRequiredTogether("min-e", "max-e", "min-n", "max-n")
	cmd.MarkFlagsRequiredTogether("e", "n")
	cmd.MarkFlagsMutuallyExclusive("min-e", "e")
	cmd.MarkFlagsOneRequired("min-e", "e")
	return f
}

// request applies flag overrides to the config and builds the download request.
func (f *downloadFlags) request(cmd *cobra.Command, g *globals) (pipeline.DownloadRequest, error) {
	fl := cmd.Flags()
	if fl.Changed("dir") {
		g.cfg.DownloadDir = f.dir
	}
	if fl.Changed("delay") {
		g.cfg.DownloadDelay = f.delay
	}
	if fl.Changed("retries") {
		if f.retries < 0 {
			return pipeline.DownloadRequest{}, errors.New("--retries must not be negative")
		}
		g.cfg.DownloadMaxRetries = f.retries
	}

	region := domain.Region{MinE: f.minE, MaxE: f.maxE, MinN: f.minN, MaxN: f.maxN}
	if fl.Changed("e") {
		region = domain.SingleTile(f.e, f.n)
	}
	ds, err := domain.ParseDisplacements(f.displacement)
	if err != nil {
		return pipeline.DownloadRequest{}, err
	}
	yearLabel := g.cfg.DefaultYear
	if f.year != "" {
		yearLabel = f.year
	}
	year, err := domain.ParseYearRange(yearLabel)
	if err != nil {
		return pipeline.DownloadRequest{}, err
	}
	cred := g.cfg.ArchiveID
	if f.id != "" {
		cred = f.id
	}
	req := pipeline.DownloadRequest{
		Region:        region,
		Displacements: ds,
		Year:          year,
		Credential:    domain.ArchiveCredential(cred),
	}
	if _, err := domain.EnumerateTasks(req.Region, req.Displacements, req.Year, req.Credential); err != nil {
		return pipeline.DownloadRequest{}, err
	}
	return req, nil
}

// reportDownloads prints each failure and a summary line. It returns an error
// when any task failed so the exit status reflects partial failure.
func reportDownloads(w io.Writer, outcomes []domain.DownloadOutcome) error {
	summary := domain.Summarize(outcomes)
	for _, o := range outcomes {
		if !o.OK() {
			fmt.Fprintln(w, o.Message())
		}
	}
	fmt.Fprintf(w, "Downloaded %d/%d archives\n", summary.Succeeded, summary.Total)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", summary.Failed, summary.Total)
	}
	return nil
}
