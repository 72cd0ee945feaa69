// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/daemon"
	"github.com/ManuGH/streamgrab/internal/engine"
	xglog "github.com/ManuGH/streamgrab/internal/log"
)

// progressStep is the percentage granularity of progress log lines.
const progressStep = 10

type downloadOptions struct {
	outDir  string
	pageURL string
}

func newDownloadCmd(root *rootOptions) *cobra.Command {
	opts := &downloadOptions{}
	cmd := &cobra.Command{
		Use:   "download URL...",
		Short: "Resolve manifests and download them one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if opts.outDir != "" {
				cfg.OutputDir = opts.outDir
			}

			b := bus.NewMemoryBus()
			coord, err := daemon.NewEngine(cfg, b)
			if err != nil {
				return err
			}
			defer coord.Close()
			return runDownload(cmd.Context(), coord, b, args, opts.pageURL, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.outDir, "out", "", "output directory (overrides outputDir)")
	cmd.Flags().StringVar(&opts.pageURL, "page", "", "page URL the manifests belong to, sent as Referer")
	return cmd
}

func runDownload(ctx context.Context, coord *engine.Coordinator, b bus.Bus, urls []string, pageURL string, out io.Writer) error {
	logger := xglog.WithComponent("cli")

	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if sub, err := b.Subscribe(progressCtx, bus.TopicStreamUpdated); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logProgress(sub)
		}()
	}
	defer func() {
		stopProgress()
		wg.Wait()
	}()

	var ids []string
	var errs []error
	for _, u := range urls {
		view, err := coord.HandleManifest(ctx, engine.Discovery{URL: u, PageURL: pageURL, Source: "cli"})
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldManifestURL, u).Msg("skipping manifest")
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		ids = append(ids, view.ID)
	}

	for _, o := range coord.Batch(ctx, ids) {
		view, _ := coord.Stream(o.ID)
		if o.Error != "" {
			fmt.Fprintf(out, "FAILED  %s: %s\n", view.Title, o.Error)
			errs = append(errs, fmt.Errorf("%s: %s", view.Title, o.Error))
			continue
		}
		fmt.Fprintf(out, "SAVED   %s -> %s\n", view.Title, view.SavedAs)
	}
	return errors.Join(errs...)
}

// logProgress logs each stream whenever it crosses another progressStep percent.
func logProgress(sub bus.Subscriber) {
	logger := xglog.WithComponent("cli")
	last := make(map[string]int)
	for msg := range sub.C() {
		ev, ok := msg.(engine.Event)
		if !ok || ev.Stream.Status != engine.StatusDownloading {
			continue
		}
		step := int(ev.Stream.ProgressPercent) / progressStep
		if prev, seen := last[ev.Stream.ID]; seen && step <= prev {
			continue
		}
		last[ev.Stream.ID] = step
		e := logger.Info().
			Str(xglog.FieldStreamID, ev.Stream.ID).
			Str("title", ev.Stream.Title).
			Float64("progress", ev.Stream.ProgressPercent).
			Int("segments_done", ev.Stream.DownloadedSegments).
			Int("segments_total", ev.Stream.TotalSegments)
		if ev.Stream.ETASeconds != nil {
			e = e.Float64("eta_seconds", *ev.Stream.ETASeconds)
		}
		e.Msg("download progress")
	}
}
