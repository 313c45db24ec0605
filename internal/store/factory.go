// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package store

import (
	"sync"

	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend          string
	Path             string
	VectorDimensions int
}

// Factory creates the catalog and feedback stores for a backend.
type Factory func(cfg StorageConfig) (CatalogStore, FeedbackStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// NewStores creates the catalog and feedback stores for the configured
// backend, defaulting to "sqlite".
func NewStores(cfg StorageConfig) (CatalogStore, FeedbackStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}
	if cfg.VectorDimensions <= 0 {
		cfg.VectorDimensions = DefaultVectorDimensions
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, resonaerr.Errorf(resonaerr.CodeCatalogBackendUnsupported,
			"unsupported storage backend: %q", backend)
	}

	return factory(cfg)
}

func init() {
	// The in-memory backend lives in this package; the sqlite backend
	// registers itself from its own package init.
	RegisterBackend("memory", func(cfg StorageConfig) (CatalogStore, FeedbackStore, error) {
		return NewMemoryCatalogStore(cfg.VectorDimensions), NewMemoryFeedbackStore(), nil
	})
}
