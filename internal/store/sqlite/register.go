// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/resona-dev/resona/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newStores)
}

func newStores(cfg store.StorageConfig) (store.CatalogStore, store.FeedbackStore, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating storage directory: %w", err)
	}

	cs, err := NewCatalogStore(filepath.Join(cfg.Path, "catalog.db"), cfg.VectorDimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("creating catalog store: %w", err)
	}

	fs, err := NewFeedbackStore(filepath.Join(cfg.Path, "feedback.db"))
	if err != nil {
		_ = cs.Close()
		return nil, nil, fmt.Errorf("creating feedback store: %w", err)
	}

	return cs, fs, nil
}
