package ballot

import (
	"fmt"
	"time"
)

// Entry is one ranked position on a ballot.
type Entry struct {
	EntrantID string `json:"entrant_id"`
	Rank      int    `json:"rank"` // 1 = top choice
}

// Ballot is one voter's submitted ranking for a contest. Ballots are
// immutable once created and retained indefinitely.
type Ballot struct {
	ID          string    `json:"id"`
	ContestID   string    `json:"contest_id"`
	VoterID     string    `json:"voter_id"` // opaque, anonymous, unique per device
	Entries     []Entry   `json:"entries"`
	Location    *Location `json:"location,omitempty"` // normalized at the submission boundary
	SubmittedAt time.Time `json:"submitted_at"`
}

// ValidateEntries checks that entries form a dense permutation of ranks
// 1..n with no entrant repeated. This runs at the submission boundary;
// aggregation itself trusts its input.
func ValidateEntries(entries []Entry, n int) error {
	if len(entries) != n {
		return fmt.Errorf("ballot has %d entries, contest has %d entrants", len(entries), n)
	}

	ranksSeen := make(map[int]bool, n)
	entrantsSeen := make(map[string]bool, n)
	for _, e := range entries {
		if e.Rank < 1 || e.Rank > n {
			return fmt.Errorf("rank %d out of range 1..%d", e.Rank, n)
		}
		if ranksSeen[e.Rank] {
			return fmt.Errorf("duplicate rank %d", e.Rank)
		}
		if entrantsSeen[e.EntrantID] {
			return fmt.Errorf("entrant %q ranked more than once", e.EntrantID)
		}
		ranksSeen[e.Rank] = true
		entrantsSeen[e.EntrantID] = true
	}

	return nil
}

// ValidateEntrants checks that every entry names one of the contest's
// entrants. Paired with ValidateEntries at the submission boundary: density
// alone would let a ballot of well-ranked unknown IDs into the append-only
// log, where it would pollute every subsequent tally.
func ValidateEntrants(entries []Entry, entrantIDs []string) error {
	known := make(map[string]bool, len(entrantIDs))
	for _, id := range entrantIDs {
		known[id] = true
	}

	for _, e := range entries {
		if !known[e.EntrantID] {
			return fmt.Errorf("unknown entrant %q", e.EntrantID)
		}
	}

	return nil
}
