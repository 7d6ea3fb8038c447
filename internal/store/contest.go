package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Contest is the venue-side record of one performance contest.
type Contest struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	EntrantCount int        `json:"entrant_count"`
	ConcludesAt  *time.Time `json:"concludes_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Entrant is one competitor in a contest.
type Entrant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"` // stage order, 1-based
}

// ContestStore reads and administers contests. The voting core treats it as
// read-only; creation and conclusion updates belong to the admin surface.
type ContestStore struct {
	db *sql.DB
}

// NewContestStore creates a contest store over an open database.
func NewContestStore(db *sql.DB) *ContestStore {
	return &ContestStore{db: db}
}

// Create inserts a contest and its entrants in one transaction.
func (s *ContestStore) Create(ctx context.Context, contest Contest, entrants []Entrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var concludesAt any
	if contest.ConcludesAt != nil {
		concludesAt = contest.ConcludesAt.Unix()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contest (id, name, entrant_count, concludes_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, contest.ID, contest.Name, contest.EntrantCount, concludesAt, contest.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert contest: %w", err)
	}

	for _, e := range entrants {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entrant (id, contest_id, name, position)
			VALUES (?, ?, ?, ?)
		`, e.ID, contest.ID, e.Name, e.Position)
		if err != nil {
			return fmt.Errorf("failed to insert entrant %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns one contest by id, or ErrNotFound.
func (s *ContestStore) Get(ctx context.Context, id string) (*Contest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entrant_count, concludes_at, created_at
		FROM contest WHERE id = ?
	`, id)

	var c Contest
	var concludesAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Name, &c.EntrantCount, &concludesAt, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read contest %s: %w", id, err)
	}

	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	if concludesAt.Valid {
		t := time.Unix(concludesAt.Int64, 0).UTC()
		c.ConcludesAt = &t
	}

	return &c, nil
}

// Entrants returns a contest's entrants in stage order.
func (s *ContestStore) Entrants(ctx context.Context, contestID string) ([]Entrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, position FROM entrant
		WHERE contest_id = ? ORDER BY position
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read entrants for %s: %w", contestID, err)
	}
	defer rows.Close()

	var entrants []Entrant
	for rows.Next() {
		var e Entrant
		if err := rows.Scan(&e.ID, &e.Name, &e.Position); err != nil {
			return nil, err
		}
		entrants = append(entrants, e)
	}

	return entrants, rows.Err()
}

// SetConclusion records the most recently received conclusion timestamp.
// Later signals overwrite earlier ones.
func (s *ContestStore) SetConclusion(ctx context.Context, contestID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contest SET concludes_at = ? WHERE id = ?
	`, at.Unix(), contestID)
	if err != nil {
		return fmt.Errorf("failed to set conclusion for %s: %w", contestID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWithConclusion returns all contests that have received a conclusion
// signal, for the tally coordinator to scan.
func (s *ContestStore) ListWithConclusion(ctx context.Context) ([]Contest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entrant_count, concludes_at, created_at
		FROM contest WHERE concludes_at IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list concluding contests: %w", err)
	}
	defer rows.Close()

	var contests []Contest
	for rows.Next() {
		var c Contest
		var concludesAt int64
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Name, &c.EntrantCount, &concludesAt, &createdAt); err != nil {
			return nil, err
		}
		t := time.Unix(concludesAt, 0).UTC()
		c.ConcludesAt = &t
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		contests = append(contests, c)
	}

	return contests, rows.Err()
}
