// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamgrab/internal/config"
	"github.com/ManuGH/streamgrab/internal/daemon"
	xglog "github.com/ManuGH/streamgrab/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: HTTP discovery feed, stream control and events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, loader)
		},
	}
}

func serve(ctx context.Context, cfg config.AppConfig, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")
	logger.Info().
		Str("event", "config.loaded").
		Str("path", loader.Path()).
		Str("listen", cfg.ListenAddr).
		Str("output_dir", cfg.OutputDir).
		Msg("starting streamgrab")

	rt, err := daemon.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.ListenAddr), daemon.Deps{
		Logger:     logger,
		APIHandler: rt.API.Handler(),
	})
	if err != nil {
		return errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}
	mgr.RegisterShutdownHook("runtime", rt.Close)

	holder := config.NewHolder(cfg, loader)
	return daemon.NewApp(logger, mgr, holder, rt).Run(ctx)
}
