// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/resona-dev/resona/internal/store"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.CatalogStore = (*CatalogStore)(nil)

// CatalogStore implements store.CatalogStore backed by SQLite with sqlite-vec.
// Entry metadata lives in a plain table carrying the unique URL index; the
// feature vectors live in a companion vec0 virtual table keyed by entry id.
type CatalogStore struct {
	db   *sql.DB
	dims int
}

// NewCatalogStore opens (or creates) a SQLite database at dbPath and
// initialises the entries table and the vec0 virtual table.
func NewCatalogStore(dbPath string, dims int) (*CatalogStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateCatalog(db, dims); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating catalog tables: %w", err)
	}

	return &CatalogStore{db: db, dims: dims}, nil
}

func migrateCatalog(db *sql.DB, dims int) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	creator_name    TEXT NOT NULL,
	url             TEXT NOT NULL UNIQUE,
	source_platform TEXT NOT NULL,
	added_by        TEXT NOT NULL DEFAULT '',
	release_date    TEXT NOT NULL DEFAULT '',
	added_at        TEXT NOT NULL
)`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating entries table: %w", err)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS entry_vectors USING vec0(entry_id INTEGER PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dims,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating entry_vectors virtual table: %w", err)
	}

	return nil
}

// StoreOrFetch inserts the entry unless the URL is already present. The
// unique index on url is the concurrency control: the insert either lands or
// affects zero rows, and in the latter case the winner's row is fetched and
// returned with isNew=false.
func (c *CatalogStore) StoreOrFetch(ctx context.Context, entry store.NewEntry) (*store.Entry, bool, error) {
	if err := store.ValidateVector(entry.Vector, c.dims); err != nil {
		return nil, false, err
	}

	blob, err := sqlite_vec.SerializeFloat32(entry.Vector)
	if err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "serializing embedding")
	}

	addedAt := time.Now().UTC()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const insertQ = `INSERT INTO entries (title, creator_name, url, source_platform, added_by, release_date, added_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING`

	res, err := tx.ExecContext(ctx, insertQ,
		entry.Title,
		entry.CreatorName,
		entry.URL,
		entry.SourcePlatform,
		entry.AddedBy,
		entry.ReleaseDate,
		formatTime(addedAt),
	)
	if err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure,
			"inserting entry", resonaerr.FieldURL(entry.URL))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "checking rows affected")
	}

	if rows == 0 {
		// Lost the race (or the URL was already stored): return the
		// winner's row untouched.
		_ = tx.Rollback()
		existing, err := c.GetByURL(ctx, entry.URL)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "reading inserted id")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO entry_vectors(entry_id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure,
			"inserting entry vector", resonaerr.FieldEntryID(id))
	}

	if err := tx.Commit(); err != nil {
		return nil, false, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "committing entry insert")
	}

	return &store.Entry{
		ID:             id,
		Title:          entry.Title,
		CreatorName:    entry.CreatorName,
		URL:            entry.URL,
		SourcePlatform: entry.SourcePlatform,
		AddedBy:        entry.AddedBy,
		ReleaseDate:    entry.ReleaseDate,
		AddedAt:        addedAt,
		Vector:         entry.Vector,
	}, true, nil
}

// GetByID returns the entry including its feature vector.
func (c *CatalogStore) GetByID(ctx context.Context, id int64) (*store.Entry, error) {
	const q = `SELECT id, title, creator_name, url, source_platform, added_by, release_date, added_at
FROM entries WHERE id = ?`

	entry, err := c.scanEntry(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resonaerr.New(resonaerr.CodeCatalogEntryNotFound,
			"entry not found", resonaerr.FieldEntryID(id))
	}
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure,
			"getting entry", resonaerr.FieldEntryID(id))
	}

	var blob []byte
	err = c.db.QueryRowContext(ctx, `SELECT embedding FROM entry_vectors WHERE entry_id = ?`, id).Scan(&blob)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure,
			"getting entry vector", resonaerr.FieldEntryID(id))
	}
	entry.Vector = deserializeFloat32(blob)

	return entry, nil
}

// GetByURL returns the entry metadata for a URL; the vector is omitted
// because the dedupe pre-check has no use for it.
func (c *CatalogStore) GetByURL(ctx context.Context, url string) (*store.Entry, error) {
	const q = `SELECT id, title, creator_name, url, source_platform, added_by, release_date, added_at
FROM entries WHERE url = ?`

	entry, err := c.scanEntry(c.db.QueryRowContext(ctx, q, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resonaerr.New(resonaerr.CodeCatalogEntryNotFound,
			"entry not found", resonaerr.FieldURL(url))
	}
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure,
			"getting entry", resonaerr.FieldURL(url))
	}
	return entry, nil
}

// FindNearest performs a KNN query against the vec0 table. The excludeID
// filter happens after the scan, so one extra candidate is requested to keep
// the effective limit intact.
func (c *CatalogStore) FindNearest(ctx context.Context, vector []float32, limit int, excludeID int64) ([]store.Neighbor, error) {
	if err := store.ValidateVector(vector, c.dims); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "serializing query vector")
	}

	k := limit
	if excludeID > 0 {
		k++
	}

	const q = `SELECT v.entry_id, v.distance, e.title, e.creator_name, e.url, e.source_platform, e.added_by, e.release_date, e.added_at
FROM entry_vectors v
JOIN entries e ON e.id = v.entry_id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := c.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "searching entry vectors")
	}
	defer func() { _ = rows.Close() }()

	var neighbors []store.Neighbor
	for rows.Next() {
		var entry store.Entry
		var distance float64
		var addedAt string

		if err := rows.Scan(
			&entry.ID,
			&distance,
			&entry.Title,
			&entry.CreatorName,
			&entry.URL,
			&entry.SourcePlatform,
			&entry.AddedBy,
			&entry.ReleaseDate,
			&addedAt,
		); err != nil {
			return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "scanning neighbor row")
		}
		if entry.ID == excludeID {
			continue
		}
		entry.AddedAt = parseTime(addedAt)
		neighbors = append(neighbors, store.Neighbor{Entry: &entry, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "iterating neighbor rows")
	}

	// vec0 orders by distance only; make ties deterministic by id.
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Entry.ID < neighbors[j].Entry.ID
	})

	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// ListAll returns all entry metadata ordered by id, vectors omitted.
func (c *CatalogStore) ListAll(ctx context.Context) ([]*store.Entry, error) {
	const q = `SELECT id, title, creator_name, url, source_platform, added_by, release_date, added_at
FROM entries ORDER BY id`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "listing entries")
	}
	defer func() { _ = rows.Close() }()

	var entries []*store.Entry
	for rows.Next() {
		entry, err := c.scanEntry(rows)
		if err != nil {
			return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "scanning entry row")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeCatalogDatabaseFailure, "iterating entry rows")
	}

	return entries, nil
}

// Close closes the underlying database connection.
func (c *CatalogStore) Close() error {
	return c.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (c *CatalogStore) scanEntry(row rowScanner) (*store.Entry, error) {
	var entry store.Entry
	var addedAt string

	err := row.Scan(
		&entry.ID,
		&entry.Title,
		&entry.CreatorName,
		&entry.URL,
		&entry.SourcePlatform,
		&entry.AddedBy,
		&entry.ReleaseDate,
		&addedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.AddedAt = parseTime(addedAt)
	return &entry, nil
}

// deserializeFloat32 decodes the little-endian float32 blob stored by
// sqlite-vec back into a vector.
func deserializeFloat32(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
