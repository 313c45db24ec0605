// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/resona-dev/resona/internal/store"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// Compile-time interface check.
var _ store.FeedbackStore = (*FeedbackStore)(nil)

// FeedbackStore implements store.FeedbackStore backed by SQLite. The
// composite primary key on (user_id, query_entry_id, suggested_entry_id)
// makes RecordVote a keyed overwrite, and aggregates are computed with SUM
// at read time so they can never drift from the vote rows.
type FeedbackStore struct {
	db *sql.DB
}

// NewFeedbackStore opens (or creates) a SQLite database at dbPath and
// initialises the feedback_votes table.
func NewFeedbackStore(dbPath string) (*FeedbackStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateFeedback(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating feedback tables: %w", err)
	}

	return &FeedbackStore{db: db}, nil
}

func migrateFeedback(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS feedback_votes (
	user_id            TEXT NOT NULL,
	query_entry_id     INTEGER NOT NULL,
	suggested_entry_id INTEGER NOT NULL,
	vote               INTEGER NOT NULL CHECK (vote IN (-1, 1)),
	updated_at         TEXT NOT NULL,
	PRIMARY KEY (user_id, query_entry_id, suggested_entry_id)
)`
	_, err := db.Exec(ddl)
	return err
}

// RecordVote upserts the vote for the triple; a prior vote from the same
// user on the same pair is replaced, not accumulated.
func (f *FeedbackStore) RecordVote(ctx context.Context, userID string, queryID, suggestedID int64, vote int) error {
	if err := store.ValidateVote(vote); err != nil {
		return err
	}

	const q = `INSERT INTO feedback_votes (user_id, query_entry_id, suggested_entry_id, vote, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id, query_entry_id, suggested_entry_id) DO UPDATE SET
	vote = excluded.vote,
	updated_at = excluded.updated_at`

	_, err := f.db.ExecContext(ctx, q, userID, queryID, suggestedID, vote, formatTime(time.Now()))
	if err != nil {
		return resonaerr.Wrap(err, resonaerr.CodeFeedbackDatabaseFailure,
			"recording vote", resonaerr.FieldUserID(userID))
	}
	return nil
}

// AggregateScores sums current votes per candidate for queryID. Candidates
// without votes are absent from the result.
func (f *FeedbackStore) AggregateScores(ctx context.Context, queryID int64, candidateIDs []int64) (map[int64]int, error) {
	if len(candidateIDs) == 0 {
		return map[int64]int{}, nil
	}

	placeholders := strings.Repeat("?,", len(candidateIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(candidateIDs)+1)
	args = append(args, queryID)
	for _, id := range candidateIDs {
		args = append(args, id)
	}

	q := `SELECT suggested_entry_id, SUM(vote)
FROM feedback_votes
WHERE query_entry_id = ? AND suggested_entry_id IN (` + placeholders + `)
GROUP BY suggested_entry_id`

	rows, err := f.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeFeedbackDatabaseFailure, "aggregating votes")
	}
	defer func() { _ = rows.Close() }()

	scores := map[int64]int{}
	for rows.Next() {
		var id int64
		var sum int
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, resonaerr.Wrap(err, resonaerr.CodeFeedbackDatabaseFailure, "scanning vote sum")
		}
		scores[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeFeedbackDatabaseFailure, "iterating vote sums")
	}

	return scores, nil
}

// Close closes the underlying database connection.
func (f *FeedbackStore) Close() error {
	return f.db.Close()
}
