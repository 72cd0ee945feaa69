// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ManuGH/streamgrab/internal/daemon"
	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/fetch"
	"github.com/ManuGH/streamgrab/internal/manifest"
	"github.com/ManuGH/streamgrab/internal/playlist"
	"github.com/ManuGH/streamgrab/internal/sink"
)

type resolveOptions struct {
	m3u8Path string
	asJSON   bool
	pageURL  string
}

type resolveOutput struct {
	Stream   engine.StreamView  `json:"stream"`
	Segments []manifest.Segment `json:"segments"`
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve URL",
		Short: "Resolve a manifest into its segment list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			coord, err := engine.New(engine.Options{
				Fetcher: fetch.NewClient(daemon.FetchOptions(cfg.Fetch)),
				Sink:    sink.Func(func(context.Context, string, []byte) error { return nil }),
				Rules:   cfg.Filter,
				Limits:  engine.Limits{SegmentCap: cfg.Engine.SegmentCap, MaxVariantDepth: cfg.Engine.MaxVariantDepth},
			})
			if err != nil {
				return err
			}
			defer coord.Close()
			return runResolve(cmd.Context(), coord, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.m3u8Path, "m3u8", "", "also write the segments as a VOD playlist to this file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the stream and segments as JSON")
	cmd.Flags().StringVar(&opts.pageURL, "page", "", "page URL the manifest belongs to, sent as Referer")
	return cmd
}

func runResolve(ctx context.Context, coord *engine.Coordinator, rawURL string, opts *resolveOptions, out io.Writer) error {
	view, err := coord.HandleManifest(ctx, engine.Discovery{URL: rawURL, PageURL: opts.pageURL, Source: "cli"})
	if err != nil {
		return err
	}
	segs, err := coord.Segments(view.ID)
	if err != nil {
		return err
	}

	if opts.m3u8Path != "" {
		var buf bytes.Buffer
		if err := playlist.WriteM3U8(&buf, segs); err != nil {
			return err
		}
		if err := renameio.WriteFile(opts.m3u8Path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write playlist: %w", err)
		}
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resolveOutput{Stream: *view, Segments: segs})
	}

	fmt.Fprintf(out, "%s\n", view.Title)
	fmt.Fprintf(out, "  format:   %s\n", view.Format)
	fmt.Fprintf(out, "  segments: %d\n", view.TotalSegments)
	if d := view.Metadata.TotalDuration; d != nil {
		fmt.Fprintf(out, "  duration: %.1fs\n", *d)
	}
	if vi := view.Metadata.VariantInfo; vi != nil && vi.Resolution != "" {
		fmt.Fprintf(out, "  variant:  %s @ %d bps\n", vi.Resolution, vi.Bandwidth)
	}
	for _, s := range segs {
		if s.Init {
			fmt.Fprintf(out, "  init %s\n", s.URL)
			continue
		}
		fmt.Fprintf(out, "  %s\n", s.URL)
	}
	return nil
}
