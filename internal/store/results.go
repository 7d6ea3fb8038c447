package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fanvote/fanvote-service/internal/ballot"
)

// ResultStore holds the latest aggregate result per contest in a single
// slot. Saves overwrite atomically; there are never partial writes.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a result store over an open database.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// ResultKey returns the deterministic slot key for a contest's Borda result.
func ResultKey(contestID string) string {
	return fmt.Sprintf("contest_%s_borda", contestID)
}

// Save writes the aggregate result, replacing any previous one for the
// contest (last-write-wins).
func (s *ResultStore) Save(ctx context.Context, result ballot.AggregateResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO result (key, contest_id, payload, computed_at)
		VALUES (?, ?, ?, ?)
	`, ResultKey(result.ContestID), result.ContestID, string(payload), result.ComputedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.ContestID, err)
	}

	return nil
}

// Get returns the latest aggregate result for a contest, or ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, contestID string) (*ballot.AggregateResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM result WHERE key = ?
	`, ResultKey(contestID)).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read result for %s: %w", contestID, err)
	}

	var result ballot.AggregateResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result for %s: %w", contestID, err)
	}

	return &result, nil
}
