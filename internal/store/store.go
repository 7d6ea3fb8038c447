package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicateVoter = errors.New("store: voter already submitted a ballot for this contest")
)

// Open opens (or creates) the sqlite database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite handles one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// CreateSchema creates all tables needed by the service.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
-- Contests
CREATE TABLE IF NOT EXISTS contest (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    entrant_count INTEGER NOT NULL,
    concludes_at INTEGER,
    created_at INTEGER NOT NULL
);

-- Entrants
CREATE TABLE IF NOT EXISTS entrant (
    id TEXT NOT NULL,
    contest_id TEXT NOT NULL REFERENCES contest(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (contest_id, id)
);

CREATE INDEX IF NOT EXISTS idx_entrant_contest_id ON entrant(contest_id);

-- Ballots (append-only)
CREATE TABLE IF NOT EXISTS ballot (
    id TEXT PRIMARY KEY,
    contest_id TEXT NOT NULL REFERENCES contest(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    latitude REAL,
    longitude REAL,
    submitted_at INTEGER NOT NULL,
    UNIQUE (contest_id, voter_id)
);

CREATE INDEX IF NOT EXISTS idx_ballot_contest_id ON ballot(contest_id);

-- Ballot entries
CREATE TABLE IF NOT EXISTS ballot_entry (
    ballot_id TEXT NOT NULL REFERENCES ballot(id) ON DELETE CASCADE,
    entrant_id TEXT NOT NULL,
    rank INTEGER NOT NULL,
    PRIMARY KEY (ballot_id, entrant_id)
);

CREATE INDEX IF NOT EXISTS idx_ballot_entry_ballot_id ON ballot_entry(ballot_id);

-- Aggregate results: one slot per key, overwritten on recompute
CREATE TABLE IF NOT EXISTS result (
    key TEXT PRIMARY KEY,
    contest_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    computed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_result_contest_id ON result(contest_id);
`
