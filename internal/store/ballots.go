package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fanvote/fanvote-service/internal/ballot"
)

// BallotStore appends and scans ballots. Ballots are immutable once
// written: there is no update or delete.
type BallotStore struct {
	db *sql.DB
}

// NewBallotStore creates a ballot store over an open database.
func NewBallotStore(db *sql.DB) *BallotStore {
	return &BallotStore{db: db}
}

// Append writes one ballot and its entries atomically. The ballot is
// assigned an id if it has none. A second ballot from the same voter for
// the same contest returns ErrDuplicateVoter.
func (s *BallotStore) Append(ctx context.Context, b *ballot.Ballot) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ballot WHERE contest_id = ? AND voter_id = ?)
	`, b.ContestID, b.VoterID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check voter: %w", err)
	}
	if exists {
		return ErrDuplicateVoter
	}

	var lat, lon any
	if b.Location != nil {
		lat = b.Location.Latitude
		lon = b.Location.Longitude
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ballot (id, contest_id, voter_id, latitude, longitude, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.ContestID, b.VoterID, lat, lon, b.SubmittedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert ballot: %w", err)
	}

	for _, e := range b.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ballot_entry (ballot_id, entrant_id, rank)
			VALUES (?, ?, ?)
		`, b.ID, e.EntrantID, e.Rank)
		if err != nil {
			return fmt.Errorf("failed to insert ballot entry: %w", err)
		}
	}

	return tx.Commit()
}

// ListByContest performs the full scan the aggregator consumes: every
// ballot for the contest ordered by submission time, entries ordered by
// rank.
func (s *BallotStore) ListByContest(ctx context.Context, contestID string) ([]ballot.Ballot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, voter_id, latitude, longitude, submitted_at FROM ballot
		WHERE contest_id = ? ORDER BY submitted_at, id
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballots for %s: %w", contestID, err)
	}
	defer rows.Close()

	var ballots []ballot.Ballot
	for rows.Next() {
		var b ballot.Ballot
		var lat, lon sql.NullFloat64
		var submittedAt int64
		if err := rows.Scan(&b.ID, &b.VoterID, &lat, &lon, &submittedAt); err != nil {
			return nil, err
		}
		b.ContestID = contestID
		if lat.Valid && lon.Valid {
			b.Location = &ballot.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		b.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		ballots = append(ballots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range ballots {
		entries, err := s.listEntries(ctx, ballots[i].ID)
		if err != nil {
			return nil, err
		}
		ballots[i].Entries = entries
	}

	return ballots, nil
}

// CountByContest returns the number of ballots stored for a contest.
func (s *BallotStore) CountByContest(ctx context.Context, contestID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ballot WHERE contest_id = ?
	`, contestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ballots for %s: %w", contestID, err)
	}
	return count, nil
}

func (s *BallotStore) listEntries(ctx context.Context, ballotID string) ([]ballot.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entrant_id, rank FROM ballot_entry
		WHERE ballot_id = ? ORDER BY rank
	`, ballotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for ballot %s: %w", ballotID, err)
	}
	defer rows.Close()

	var entries []ballot.Entry
	for rows.Next() {
		var e ballot.Entry
		if err := rows.Scan(&e.EntrantID, &e.Rank); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
