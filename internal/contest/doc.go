// Package contest coordinates the contest lifecycle: it tracks conclusion
// signals and recomputes aggregate results for concluded contests.
package contest
