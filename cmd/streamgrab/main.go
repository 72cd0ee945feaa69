// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command streamgrab resolves HLS and DASH manifests into segment lists and
// downloads them, either once from the command line or as a daemon fed over HTTP.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamgrab/internal/config"
	"github.com/ManuGH/streamgrab/internal/daemon"
	xglog "github.com/ManuGH/streamgrab/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "streamgrab",
		Short:         "Resolve and download segmented video streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newDownloadCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and reconfigures logging from it.
func (o *rootOptions) load() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(strings.TrimSpace(o.configPath), version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	return cfg, loader, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit: %s, built: %s)\n", version, commit, buildDate)
			return err
		},
	}
}

func main() {
	xglog.Configure(xglog.Config{Level: "info", Output: os.Stderr, Version: version})
	ctx, stop := daemon.WaitForShutdown()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := xglog.WithComponent("cli")
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
