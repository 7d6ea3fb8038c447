package contest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fanvote/fanvote-service/internal/ballot"
	"github.com/fanvote/fanvote-service/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	coordinator *Coordinator
	contests    *store.ContestStore
	ballots     *store.BallotStore
	results     *store.ResultStore
	now         time.Time
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		contests: store.NewContestStore(db),
		ballots:  store.NewBallotStore(db),
		results:  store.NewResultStore(db),
		now:      time.Unix(1700000000, 0).UTC(),
	}

	f.coordinator = NewCoordinator(testLogger(), f.contests, f.ballots, f.results, time.Minute)
	f.coordinator.clock = func() time.Time { return f.now }

	return f
}

func (f *fixture) createContest(t *testing.T, id string, entrantIDs ...string) {
	t.Helper()

	entrants := make([]store.Entrant, len(entrantIDs))
	for i, eid := range entrantIDs {
		entrants[i] = store.Entrant{ID: eid, Name: eid, Position: i + 1}
	}

	err := f.contests.Create(context.Background(), store.Contest{
		ID:           id,
		Name:         "Test Contest",
		EntrantCount: len(entrantIDs),
		CreatedAt:    f.now,
	}, entrants)
	if err != nil {
		t.Fatalf("failed to create contest: %v", err)
	}
}

func (f *fixture) submit(t *testing.T, contestID, voterID string, ranked ...string) {
	t.Helper()

	entries := make([]ballot.Entry, len(ranked))
	for i, eid := range ranked {
		entries[i] = ballot.Entry{EntrantID: eid, Rank: i + 1}
	}

	err := f.ballots.Append(context.Background(), &ballot.Ballot{
		ContestID:   contestID,
		VoterID:     voterID,
		Entries:     entries,
		SubmittedAt: f.now,
	})
	if err != nil {
		t.Fatalf("failed to submit ballot: %v", err)
	}
}

func TestTallyRequiresConclusion(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.createContest(t, "c1", "a", "b")
	f.submit(t, "c1", "v1", "a", "b")

	if _, err := f.coordinator.Tally(ctx, "c1", false); !errors.Is(err, ErrNotConcluded) {
		t.Fatalf("expected ErrNotConcluded, got %v", err)
	}

	// Conclusion in the future still counts as live.
	if err := f.contests.SetConclusion(ctx, "c1", f.now.Add(time.Hour)); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}
	if _, err := f.coordinator.Tally(ctx, "c1", false); !errors.Is(err, ErrNotConcluded) {
		t.Fatalf("expected ErrNotConcluded for future conclusion, got %v", err)
	}

	if err := f.contests.SetConclusion(ctx, "c1", f.now); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}
	result, err := f.coordinator.Tally(ctx, "c1", false)
	if err != nil {
		t.Fatalf("Tally failed: %v", err)
	}
	if result.PointsByEntrant["a"] != 2 || result.PointsByEntrant["b"] != 1 {
		t.Errorf("unexpected points: %v", result.PointsByEntrant)
	}
}

func TestTallyForceOverridesLiveContest(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.createContest(t, "c1", "a", "b", "c")
	f.submit(t, "c1", "v1", "a", "b", "c")
	f.submit(t, "c1", "v2", "a", "c", "b")

	result, err := f.coordinator.Tally(ctx, "c1", true)
	if err != nil {
		t.Fatalf("forced Tally failed: %v", err)
	}
	if result.BallotCount != 2 {
		t.Errorf("ballot count = %d, want 2", result.BallotCount)
	}
	if result.PointsByEntrant["a"] != 6 {
		t.Errorf("points[a] = %d, want 6", result.PointsByEntrant["a"])
	}

	// Recompute after more ballots overwrites the stored slot.
	f.submit(t, "c1", "v3", "b", "a", "c")
	if _, err := f.coordinator.Tally(ctx, "c1", true); err != nil {
		t.Fatalf("second Tally failed: %v", err)
	}

	stored, err := f.results.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get result failed: %v", err)
	}
	if stored.BallotCount != 3 {
		t.Errorf("stored ballot count = %d, want 3", stored.BallotCount)
	}
}

func TestTallyUnknownContest(t *testing.T) {
	f := setupFixture(t)

	if _, err := f.coordinator.Tally(context.Background(), "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTallyZeroBallots(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.createContest(t, "c1", "a", "b")

	result, err := f.coordinator.Tally(ctx, "c1", true)
	if err != nil {
		t.Fatalf("Tally failed: %v", err)
	}
	if result.BallotCount != 0 || result.TotalPoints != 0 {
		t.Errorf("zero-ballot tally = %+v, want empty result", result)
	}
}

func TestConcluded(t *testing.T) {
	f := setupFixture(t)

	past := f.now.Add(-time.Second)
	exact := f.now
	future := f.now.Add(time.Second)

	tests := []struct {
		name        string
		concludesAt *time.Time
		want        bool
	}{
		{"no signal", nil, false},
		{"past", &past, true},
		{"exactly now", &exact, true},
		{"future", &future, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &store.Contest{ID: "c1", ConcludesAt: tt.concludesAt}
			if got := f.coordinator.Concluded(c); got != tt.want {
				t.Errorf("Concluded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSweepTalliesConcludedContests(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.createContest(t, "concluded", "a", "b")
	f.submit(t, "concluded", "v1", "a", "b")
	if err := f.contests.SetConclusion(ctx, "concluded", f.now.Add(-time.Minute)); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}

	f.createContest(t, "live", "a", "b")
	f.submit(t, "live", "v1", "a", "b")

	f.createContest(t, "pending", "a", "b")
	if err := f.contests.SetConclusion(ctx, "pending", f.now.Add(time.Hour)); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}

	f.coordinator.sweep()

	if _, err := f.results.Get(ctx, "concluded"); err != nil {
		t.Errorf("concluded contest was not tallied: %v", err)
	}
	if _, err := f.results.Get(ctx, "live"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("live contest should not be tallied, got %v", err)
	}
	if _, err := f.results.Get(ctx, "pending"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("pending contest should not be tallied, got %v", err)
	}
}

func TestSweepSkipsAlreadyTalliedConclusion(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.createContest(t, "c1", "a", "b")
	f.submit(t, "c1", "v1", "a", "b")
	if err := f.contests.SetConclusion(ctx, "c1", f.now.Add(-time.Minute)); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}

	f.coordinator.sweep()
	f.coordinator.sweep()

	f.coordinator.mu.Lock()
	talliesRun := f.coordinator.talliesRun
	f.coordinator.mu.Unlock()
	if talliesRun != 1 {
		t.Errorf("tallies run = %d, want 1 (second sweep should skip)", talliesRun)
	}

	// A newer conclusion signal makes the contest eligible again.
	if err := f.contests.SetConclusion(ctx, "c1", f.now.Add(-time.Second)); err != nil {
		t.Fatalf("SetConclusion failed: %v", err)
	}
	f.coordinator.sweep()

	f.coordinator.mu.Lock()
	talliesRun = f.coordinator.talliesRun
	f.coordinator.mu.Unlock()
	if talliesRun != 2 {
		t.Errorf("tallies run = %d, want 2 after new signal", talliesRun)
	}
}

func TestStartStop(t *testing.T) {
	f := setupFixture(t)

	f.coordinator.Start()
	f.coordinator.Stop()

	select {
	case <-f.coordinator.done:
	default:
		t.Error("sweep routine did not finish after Stop")
	}
}
