package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/fanvote/fanvote-service/internal/ballot"
)

// Known projection names.
const (
	JSON  = "json"
	CSV   = "csv"
	Table = "table"
)

// ContentType returns the HTTP content type for a projection name, or an
// error for an unknown one.
func ContentType(name string) (string, error) {
	switch name {
	case JSON:
		return "application/json", nil
	case CSV:
		return "text/csv", nil
	case Table:
		return "text/plain; charset=utf-8", nil
	default:
		return "", fmt.Errorf("unknown result format %q", name)
	}
}

// Write renders the result's standings to w in the named projection.
func Write(w io.Writer, name string, result *ballot.AggregateResult) error {
	switch name {
	case JSON:
		return WriteJSON(w, result)
	case CSV:
		return WriteCSV(w, result)
	case Table:
		return WriteTable(w, result)
	default:
		return fmt.Errorf("unknown result format %q", name)
	}
}

// resultDocument is the JSON projection: the full aggregate plus the ranked
// standings, so consumers do not have to re-derive the ordering.
type resultDocument struct {
	ContestID   string            `json:"contest_id"`
	BallotCount int               `json:"ballot_count"`
	TotalPoints int               `json:"total_points"`
	ComputedAt  string            `json:"computed_at"`
	Standings   []ballot.Standing `json:"standings"`
}

// WriteJSON renders the result as an indented JSON document.
func WriteJSON(w io.Writer, result *ballot.AggregateResult) error {
	doc := resultDocument{
		ContestID:   result.ContestID,
		BallotCount: result.BallotCount,
		TotalPoints: result.TotalPoints,
		ComputedAt:  result.ComputedAt.Format("2006-01-02T15:04:05Z07:00"),
		Standings:   result.Standings(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteCSV renders the standings as CSV with a header row. One row per
// entrant: place, entrant id, points, share.
func WriteCSV(w io.Writer, result *ballot.AggregateResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"place", "entrant_id", "points", "share"}); err != nil {
		return err
	}

	for i, s := range result.Standings() {
		row := []string{
			strconv.Itoa(i + 1),
			s.EntrantID,
			strconv.Itoa(s.Points),
			formatShare(s.Share),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTable renders the standings as a bordered text table for terminals.
func WriteTable(w io.Writer, result *ballot.AggregateResult) error {
	data := make([][]string, 0, len(result.Entrants))
	for i, s := range result.Standings() {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			s.EntrantID,
			strconv.Itoa(s.Points),
			formatShare(s.Share),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"place", "entrant", "points", "share"})
	table.SetBorder(true)
	table.AppendBulk(data)
	table.Render()
	return nil
}

// formatShare prints a share with exactly two decimals, matching the
// rounding applied when shares were derived.
func formatShare(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
