package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/schollz/progressbar/v3"
)

// progressRenderer draws progress snapshots as a terminal bar. The bar is
// created on the first snapshot, once the total is known.
type progressRenderer struct {
	w      io.Writer
	bar    *progressbar.ProgressBar
	logger *slog.Logger
}

func newProgressRenderer(w io.Writer, logger *slog.Logger) *progressRenderer {
	return &progressRenderer{w: w, logger: logger}
}

// Report is a domain.ProgressFunc.
func (r *progressRenderer) Report(p domain.Progress) {
	if p.Total <= 0 {
		fmt.Fprintln(r.w, p.Status)
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(r.w)
			}),
		)
	}
	r.bar.Describe(p.Status)
	if err := r.bar.Set(p.Completed); err != nil {
		r.logger.Warn("failed to update progress bar", "error", err)
	}
}

// Finish completes the bar if it is still open.
func (r *progressRenderer) Finish() {
	if r.bar == nil || r.bar.IsFinished() {
		return
	}
	if err := r.bar.Finish(); err != nil {
		r.logger.Warn("failed to finish progress bar", "error", err)
	}
}
