// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resona-dev/resona/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the resona server",
		Long:  "Load configuration, open the catalog and feedback stores, and serve the recommendation API.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply any flag overrides that Viper resolved.
	if listen := viper.GetString("networking.listen"); listen != "" {
		cfg.Networking.Listen = listen
	}

	srv, cleanup, err := buildServer(cfg)
	if err != nil {
		return fmt.Errorf("wiring server: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Warn("closing stores", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting resona", "listen", cfg.Networking.Listen, "backend", cfg.Storage.Backend)
	return srv.Start(ctx)
}
