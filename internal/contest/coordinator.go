package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fanvote/fanvote-service/internal/ballot"
	"github.com/fanvote/fanvote-service/internal/store"
)

// ErrNotConcluded is returned by Tally when a contest has not received a
// conclusion signal and the caller did not force a recompute.
var ErrNotConcluded = errors.New("contest: not concluded")

// Coordinator watches for concluded contests and computes their aggregate
// results. Every tally is a full scan of the contest's ballots, so rerunning
// one is always safe: the result slot is simply overwritten.
type Coordinator struct {
	logger   *slog.Logger
	contests *store.ContestStore
	ballots  *store.BallotStore
	results  *store.ResultStore
	interval time.Duration
	clock    func() time.Time

	// Tracks which conclusion timestamp each contest was last tallied at,
	// so the sweep does not recompute an unchanged contest every tick.
	mu      sync.Mutex
	tallied map[string]int64

	talliesRun uint64

	// Sweep routine management
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a tally coordinator over the given stores. The
// interval controls how often the background sweep looks for newly
// concluded contests.
func NewCoordinator(logger *slog.Logger, contests *store.ContestStore, ballots *store.BallotStore, results *store.ResultStore, interval time.Duration) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		logger:   logger,
		contests: contests,
		ballots:  ballots,
		results:  results,
		interval: interval,
		clock:    time.Now,
		tallied:  make(map[string]int64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep routine.
func (c *Coordinator) Start() {
	go c.sweepRoutine()
}

// Stop cancels the sweep routine and waits for it to finish.
func (c *Coordinator) Stop() {
	c.cancel()
	<-c.done

	c.mu.Lock()
	talliesRun := c.talliesRun
	c.mu.Unlock()

	c.logger.Info("Tally coordinator stopped",
		slog.Uint64("tallies_run", talliesRun),
	)
}

// Tally recomputes the aggregate result for one contest from all of its
// ballots and overwrites the stored result. Unless force is set, the
// contest must have concluded.
func (c *Coordinator) Tally(ctx context.Context, contestID string, force bool) (*ballot.AggregateResult, error) {
	contest, err := c.contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}

	if !force && !c.Concluded(contest) {
		return nil, ErrNotConcluded
	}

	ballots, err := c.ballots.ListByContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ballots for %s: %w", contestID, err)
	}

	result := ballot.Aggregate(contestID, ballots, contest.EntrantCount)

	if err := c.results.Save(ctx, result); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if contest.ConcludesAt != nil {
		c.tallied[contestID] = contest.ConcludesAt.Unix()
	}
	c.talliesRun++
	c.mu.Unlock()

	c.logger.Info("Tally computed",
		slog.String("contest_id", contestID),
		slog.Int("ballot_count", result.BallotCount),
		slog.Int("total_points", result.TotalPoints),
		slog.Bool("forced", force),
	)

	return &result, nil
}

// Concluded reports whether the contest's conclusion signal has taken
// effect. A contest with no signal is still live.
func (c *Coordinator) Concluded(contest *store.Contest) bool {
	if contest.ConcludesAt == nil {
		return false
	}
	return !c.clock().Before(*contest.ConcludesAt)
}

// sweepRoutine runs in a separate goroutine to tally newly concluded contests
func (c *Coordinator) sweepRoutine() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Tally sweep routine started",
		slog.Duration("check_interval", c.interval),
	)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Tally sweep routine stopping")
			return

		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep tallies every contest whose conclusion has passed and whose current
// conclusion timestamp has not been tallied yet.
func (c *Coordinator) sweep() {
	contests, err := c.contests.ListWithConclusion(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Error("Tally sweep failed to list contests",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, contest := range contests {
		if !c.Concluded(&contest) {
			continue
		}

		c.mu.Lock()
		done := c.tallied[contest.ID] == contest.ConcludesAt.Unix()
		c.mu.Unlock()
		if done {
			continue
		}

		if _, err := c.Tally(c.ctx, contest.ID, false); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("Tally sweep failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
