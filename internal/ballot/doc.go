// Package ballot implements ranked ballots and their Modified Borda Count
// aggregation into a canonical, auditable contest score.
package ballot
