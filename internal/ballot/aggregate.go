package ballot

import (
	"math"
	"sort"
	"time"
)

// ShareScale is the fixed sum the normalized shares add up to.
const ShareScale = 10.0

// AggregateResult is the computed outcome for one contest. It is produced
// atomically from a full scan of the contest's ballots and overwritten,
// never partially updated, on recomputation.
type AggregateResult struct {
	ContestID       string             `json:"contest_id"`
	PointsByEntrant map[string]int     `json:"points_by_entrant"`
	ShareByEntrant  map[string]float64 `json:"share_by_entrant"`
	TotalPoints     int                `json:"total_points"`
	BallotCount     int                `json:"ballot_count"`
	ComputedAt      time.Time          `json:"computed_at"`

	// Entrants records first-appearance order during the ballot scan and
	// is the tie-break basis for Standings.
	Entrants []string `json:"entrants"`
}

// Standing is one row of the ranked results table.
type Standing struct {
	EntrantID string  `json:"entrant_id"`
	Points    int     `json:"points"`
	Share     float64 `json:"share"`
}

// Aggregate computes the Modified Borda Count outcome for a batch of
// ballots: each (entrant, rank) entry awards entrantCount - rank + 1
// points, the top rank earning the most. Point totals are commutative
// integer sums, so ballot iteration order never changes them; rounding is
// applied only when shares are derived.
//
// Aggregate is pure and performs no validation: ballot integrity is
// enforced at the submission boundary. Zero ballots yield a well-defined
// zero-valued result, not an error.
func Aggregate(contestID string, ballots []Ballot, entrantCount int) AggregateResult {
	points := make(map[string]int)
	order := make([]string, 0)

	for _, b := range ballots {
		for _, e := range b.Entries {
			if _, seen := points[e.EntrantID]; !seen {
				order = append(order, e.EntrantID)
			}
			points[e.EntrantID] += entrantCount - e.Rank + 1
		}
	}

	total := 0
	for _, p := range points {
		total += p
	}

	shares := make(map[string]float64, len(points))
	for entrant, p := range points {
		if total == 0 {
			shares[entrant] = 0
			continue
		}
		shares[entrant] = roundShare(float64(p) / float64(total) * ShareScale)
	}

	return AggregateResult{
		ContestID:       contestID,
		PointsByEntrant: points,
		ShareByEntrant:  shares,
		TotalPoints:     total,
		BallotCount:     len(ballots),
		ComputedAt:      time.Now().UTC(),
		Entrants:        order,
	}
}

// Standings returns entrants sorted by descending points. Ties keep their
// first-appearance order from the ballot scan (stable sort over Entrants).
func (r *AggregateResult) Standings() []Standing {
	standings := make([]Standing, 0, len(r.Entrants))
	for _, entrant := range r.Entrants {
		standings = append(standings, Standing{
			EntrantID: entrant,
			Points:    r.PointsByEntrant[entrant],
			Share:     r.ShareByEntrant[entrant],
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Points > standings[j].Points
	})

	return standings
}

// roundShare rounds a share to two decimal places. Only presentation-level
// share values are ever rounded; intermediate point sums stay integral.
func roundShare(v float64) float64 {
	return math.Round(v*100) / 100
}
