// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/resona-dev/resona/internal/config"
	"github.com/resona-dev/resona/internal/extractor"
	"github.com/resona-dev/resona/internal/recommend"
	"github.com/resona-dev/resona/internal/server"
	"github.com/resona-dev/resona/internal/store"

	// Registers the sqlite storage backend.
	_ "github.com/resona-dev/resona/internal/store/sqlite"
)

// buildServer wires the storage, extraction, and recommendation subsystems
// into a ready-to-start HTTP server. The returned cleanup closes the stores.
func buildServer(cfg *config.Config) (*server.Server, func() error, error) {
	catalog, feedback, err := store.NewStores(store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		Path:             cfg.Storage.Path,
		VectorDimensions: cfg.Storage.VectorDimensions,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() error {
		return errors.Join(catalog.Close(), feedback.Close())
	}

	ext, err := extractor.NewClient(cfg.Extractor.Endpoint, cfg.Storage.VectorDimensions,
		extractor.WithTimeout(cfg.Extractor.Timeout),
		extractor.WithLogger(slog.Default()),
	)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	rec := recommend.NewRecommender(catalog, feedback, ext,
		recommend.WithScorer(recommend.Scorer{Sensitivity: cfg.Scoring.Sensitivity}),
		recommend.WithOverfetch(cfg.Scoring.Overfetch),
		recommend.WithLogger(slog.Default()),
	)

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	})
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	srv.RegisterServices(&server.Services{
		Recommender: rec,
		Extractor:   ext.Health(),
	})

	return srv, cleanup, nil
}
