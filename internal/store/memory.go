// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// Compile-time interface checks.
var (
	_ CatalogStore  = (*MemoryCatalogStore)(nil)
	_ FeedbackStore = (*MemoryFeedbackStore)(nil)
)

// MemoryCatalogStore is an in-memory CatalogStore used by tests and the
// "memory" backend. A single mutex serializes check-and-insert, which gives
// the same dedupe guarantee the sqlite backend gets from its unique index.
type MemoryCatalogStore struct {
	mu      sync.RWMutex
	dims    int
	nextID  int64
	byID    map[int64]*Entry
	byURL   map[string]*Entry
	nowFunc func() time.Time // for testing
}

// NewMemoryCatalogStore creates an empty store for vectors of length dims.
func NewMemoryCatalogStore(dims int) *MemoryCatalogStore {
	return &MemoryCatalogStore{
		dims:    dims,
		nextID:  1,
		byID:    map[int64]*Entry{},
		byURL:   map[string]*Entry{},
		nowFunc: time.Now,
	}
}

func (m *MemoryCatalogStore) StoreOrFetch(_ context.Context, entry NewEntry) (*Entry, bool, error) {
	if err := ValidateVector(entry.Vector, m.dims); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byURL[entry.URL]; ok {
		return existing.clone(), false, nil
	}

	stored := &Entry{
		ID:             m.nextID,
		Title:          entry.Title,
		CreatorName:    entry.CreatorName,
		URL:            entry.URL,
		SourcePlatform: entry.SourcePlatform,
		AddedBy:        entry.AddedBy,
		ReleaseDate:    entry.ReleaseDate,
		AddedAt:        m.nowFunc().UTC(),
		Vector:         slices.Clone(entry.Vector),
	}
	m.nextID++
	m.byID[stored.ID] = stored
	m.byURL[stored.URL] = stored

	return stored.clone(), true, nil
}

func (m *MemoryCatalogStore) GetByID(_ context.Context, id int64) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.byID[id]
	if !ok {
		return nil, resonaerr.New(resonaerr.CodeCatalogEntryNotFound,
			"entry not found", resonaerr.FieldEntryID(id))
	}
	return entry.clone(), nil
}

func (m *MemoryCatalogStore) GetByURL(_ context.Context, url string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.byURL[url]
	if !ok {
		return nil, resonaerr.New(resonaerr.CodeCatalogEntryNotFound,
			"entry not found", resonaerr.FieldURL(url))
	}
	return entry.clone(), nil
}

func (m *MemoryCatalogStore) FindNearest(_ context.Context, vector []float32, limit int, excludeID int64) ([]Neighbor, error) {
	if err := ValidateVector(vector, m.dims); err != nil {
		return nil, err
	}

	m.mu.RLock()
	neighbors := make([]Neighbor, 0, len(m.byID))
	for _, entry := range m.byID {
		if entry.ID == excludeID {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Entry:    entry.clone(),
			Distance: CosineDistance(vector, entry.Vector),
		})
	}
	m.mu.RUnlock()

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Entry.ID < neighbors[j].Entry.ID
	})

	if limit >= 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

func (m *MemoryCatalogStore) ListAll(_ context.Context) ([]*Entry, error) {
	m.mu.RLock()
	entries := make([]*Entry, 0, len(m.byID))
	for _, entry := range m.byID {
		summary := entry.clone()
		summary.Vector = nil
		entries = append(entries, summary)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (m *MemoryCatalogStore) Close() error { return nil }

// SetNowFunc overrides the time source (for testing).
func (m *MemoryCatalogStore) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Vector = slices.Clone(e.Vector)
	return &c
}

// voteKey identifies one user's vote on one (query, suggested) pair.
type voteKey struct {
	userID      string
	queryID     int64
	suggestedID int64
}

// MemoryFeedbackStore is an in-memory FeedbackStore. Votes are keyed by the
// full triple so a resubmission overwrites rather than accumulates.
type MemoryFeedbackStore struct {
	mu    sync.RWMutex
	votes map[voteKey]int
}

// NewMemoryFeedbackStore creates an empty feedback store.
func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{votes: map[voteKey]int{}}
}

func (m *MemoryFeedbackStore) RecordVote(_ context.Context, userID string, queryID, suggestedID int64, vote int) error {
	if err := ValidateVote(vote); err != nil {
		return err
	}

	m.mu.Lock()
	m.votes[voteKey{userID, queryID, suggestedID}] = vote
	m.mu.Unlock()
	return nil
}

func (m *MemoryFeedbackStore) AggregateScores(_ context.Context, queryID int64, candidateIDs []int64) (map[int64]int, error) {
	wanted := make(map[int64]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := map[int64]int{}
	for key, vote := range m.votes {
		if key.queryID == queryID && wanted[key.suggestedID] {
			scores[key.suggestedID] += vote
		}
	}
	return scores, nil
}

func (m *MemoryFeedbackStore) Close() error { return nil }
