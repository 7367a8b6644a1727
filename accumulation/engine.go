/*
Package accumulation turns saved schedules into leaderboard ranking updates.

PURPOSE:
  A schedule can be saved many times (edits, retries, several devices).
  Each contributor's quantity must reach a leaderboard at most once per
  (leaderboard, item, calendar day). The engine guarantees that with the
  AccumulationLedger, not with locking: re-running a save is always safe.

ALGORITHM (per schedule):
  1. Cutoff: a schedule dated before asOf does not accumulate at all
  2. Normalize every item; skip empty content and items without contributors
  3. Resolve the leaderboard through the Matcher; no match -> no effect and
     no stamp, so a leaderboard created later still picks the item up
  4. Per leaderboard, under its lock:
     a. skip contributors whose watermark is >= the schedule date
     b. find or create the ranking row, add Quantity (and WeekQuantity once
        the leaderboard has been reset)
     c. re-rank, save the full list, then stamp the ledger

FAILURE SEMANTICS:
  A failed ranking save returns an error wrapping ErrRankingSaveFailed and
  leaves the ledger untouched. With an AccumulationTxStore the save and the
  stamp commit together.

SEE ALSO:
  - matcher.go: leaderboard resolution strategies
  - generic/ledger.go: watermark rules
  - workitem: CreditFor decides the credited quantity
*/
package accumulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/workitem"
)

// =============================================================================
// RESULT
// =============================================================================

type SkipReason string

const (
	SkipEmptyContent       SkipReason = "empty_content"
	SkipNoContributors     SkipReason = "no_contributors"
	SkipNoQuantity         SkipReason = "no_quantity"
	SkipNoLeaderboard      SkipReason = "no_leaderboard"
	SkipAlreadyAccumulated SkipReason = "already_accumulated"
	SkipDuplicate          SkipReason = "duplicate_in_schedule"
)

// Application is one quantity added to one leaderboard.
type Application struct {
	LeaderboardID generic.LeaderboardID
	ItemKey       string
	Contributor   string
	Quantity      decimal.Decimal
}

type Skip struct {
	ItemKey     string
	Contributor string // empty for whole-item skips
	Reason      SkipReason
}

// Result describes one Accumulate call.
type Result struct {
	ScheduleID   generic.ScheduleID
	Date         generic.TimePoint
	CutoffPassed bool
	Applied      []Application
	Skipped      []Skip

	// Schedule is a copy of the input with lastAccumulatedBy refreshed for
	// every applied contributor, ready to be written back.
	Schedule generic.Schedule
}

// Changed reports whether any leaderboard was updated.
func (r *Result) Changed() bool { return len(r.Applied) > 0 }

// =============================================================================
// ENGINE
// =============================================================================

// Store is what the engine needs. If it also implements
// generic.AccumulationTxStore, ranking saves and stamps commit together.
type Store interface {
	generic.LeaderboardStore
	generic.AccumulationLedger
}

type Engine struct {
	store   Store
	matcher Matcher
	locks   *keyedMutex
	logger  *zap.Logger
	loc     *time.Location

	// batchLimit bounds concurrent schedules in AccumulateBatch.
	batchLimit int
}

type Option func(*Engine)

func WithMatcher(m Matcher) Option { return func(e *Engine) { e.matcher = m } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithBatchLimit(n int) Option { return func(e *Engine) { e.batchLimit = n } }

// WithLocation sets the zone legacy lastAccumulatedBy timestamps are read in.
// Without it a timestamp keeps its own offset.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		matcher:    DefaultMatcher(),
		locks:      newKeyedMutex(),
		logger:     zap.NewNop(),
		batchLimit: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pending is one contributor credit waiting for its leaderboard pass.
type pending struct {
	key       generic.LedgerKey
	item      int
	quantity  decimal.Decimal
	legacy    generic.TimePoint
	hasLegacy bool
}

// Accumulate applies one schedule as of the given calendar day.
func (e *Engine) Accumulate(ctx context.Context, schedule generic.Schedule, asOf generic.TimePoint) (*Result, error) {
	result := &Result{
		ScheduleID: schedule.ID,
		Date:       schedule.Date,
		Schedule:   schedule.Clone(),
	}
	if schedule.Date.Before(asOf) {
		result.CutoffPassed = true
		return result, nil
	}

	boards, err := e.store.LoadLeaderboards(ctx)
	if err != nil {
		return result, fmt.Errorf("load leaderboards: %w", err)
	}
	byID := make(map[generic.LeaderboardID]generic.Leaderboard, len(boards))
	for _, lb := range boards {
		byID[lb.ID] = lb
	}

	plan := make(map[generic.LeaderboardID][]pending)
	seen := make(map[generic.LedgerKey]bool)
	for i, raw := range schedule.WorkItems {
		item := workitem.NormalizeIn(raw, e.loc)
		switch {
		case item.Content == "":
			result.Skipped = append(result.Skipped, Skip{ItemKey: item.Key(), Reason: SkipEmptyContent})
			continue
		case len(item.Contributors) == 0:
			result.Skipped = append(result.Skipped, Skip{ItemKey: item.Key(), Reason: SkipNoContributors})
			continue
		}

		board, matched := e.matcher.Match(item, boards)
		for _, c := range workitem.ContributorsOf(item) {
			if !c.Credit.IsPositive() {
				result.Skipped = append(result.Skipped, Skip{ItemKey: item.Key(), Contributor: c.Name, Reason: SkipNoQuantity})
				continue
			}
			if !matched {
				result.Skipped = append(result.Skipped, Skip{ItemKey: item.Key(), Contributor: c.Name, Reason: SkipNoLeaderboard})
				continue
			}
			key := generic.LedgerKey{LeaderboardID: board.ID, ItemKey: item.Key(), Contributor: c.Name}
			if seen[key] {
				result.Skipped = append(result.Skipped, Skip{ItemKey: item.Key(), Contributor: c.Name, Reason: SkipDuplicate})
				continue
			}
			seen[key] = true
			legacy, hasLegacy := item.LastAccumulatedBy[c.Name]
			plan[board.ID] = append(plan[board.ID], pending{
				key: key, item: i, quantity: c.Credit, legacy: legacy, hasLegacy: hasLegacy,
			})
		}
	}

	ids := make([]generic.LeaderboardID, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		applied, skipped, err := e.applyBoard(ctx, byID[id], schedule, plan[id])
		result.Skipped = append(result.Skipped, skipped...)
		if err != nil {
			e.logger.Warn("leaderboard update failed",
				zap.String("leaderboard", string(id)),
				zap.String("schedule", string(schedule.ID)),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, a := range applied {
			result.Applied = append(result.Applied, a.Application)
			stampItem(&result.Schedule.WorkItems[a.item], a.Contributor, schedule.Date)
		}
	}

	if len(result.Applied) > 0 {
		e.logger.Info("schedule accumulated",
			zap.String("schedule", string(schedule.ID)),
			zap.String("date", schedule.Date.String()),
			zap.Int("applied", len(result.Applied)))
	}
	return result, errors.Join(errs...)
}

type appliedEntry struct {
	Application
	item int
}

// applyBoard runs the read-modify-write of one leaderboard under its lock.
func (e *Engine) applyBoard(ctx context.Context, board generic.Leaderboard, schedule generic.Schedule, entries []pending) ([]appliedEntry, []Skip, error) {
	unlock := e.locks.Lock(board.ID)
	defer unlock()

	var applied []appliedEntry
	var skipped []Skip

	apply := func(rs generic.RankingStore, ledger generic.AccumulationLedger) error {
		applied, skipped = nil, nil

		var todo []pending
		for _, p := range entries {
			watermark, stamped, err := ledger.Watermark(ctx, p.key)
			if err != nil {
				return fmt.Errorf("read watermark %s: %w", p.key, err)
			}
			if generic.AlreadyAccumulated(watermark, stamped, schedule.Date) ||
				generic.AlreadyAccumulated(p.legacy, p.hasLegacy, schedule.Date) {
				skipped = append(skipped, Skip{ItemKey: p.key.ItemKey, Contributor: p.key.Contributor, Reason: SkipAlreadyAccumulated})
				continue
			}
			todo = append(todo, p)
		}
		if len(todo) == 0 {
			return nil
		}

		rankings, err := rs.LoadRankings(ctx, board.ID)
		if err != nil {
			return fmt.Errorf("load rankings %s: %w", board.ID, err)
		}
		stamps := make([]generic.LedgerStamp, 0, len(todo))
		for _, p := range todo {
			rankings = credit(rankings, p.key.Contributor, p.quantity, board.HasBeenReset())
			stamps = append(stamps, generic.LedgerStamp{Key: p.key, Date: schedule.Date, ScheduleID: schedule.ID})
			applied = append(applied, appliedEntry{
				Application: Application{
					LeaderboardID: board.ID,
					ItemKey:       p.key.ItemKey,
					Contributor:   p.key.Contributor,
					Quantity:      p.quantity,
				},
				item: p.item,
			})
		}

		if err := rs.SaveRankings(ctx, board.ID, Rank(rankings)); err != nil {
			return &generic.SaveError{LeaderboardID: board.ID, Op: "save rankings", Err: err}
		}
		if err := ledger.Stamp(ctx, stamps); err != nil {
			return &generic.SaveError{LeaderboardID: board.ID, Op: "stamp ledger", Err: err}
		}
		return nil
	}

	var err error
	if tx, ok := e.store.(generic.AccumulationTxStore); ok {
		err = tx.WithAccumulationTx(ctx, apply)
	} else {
		err = apply(e.store, e.store)
	}
	if err != nil {
		return nil, skipped, err
	}
	return applied, skipped, nil
}

// AccumulateBatch applies many schedules concurrently. Schedules touching
// the same leaderboard are serialized by its lock. Results keep input order;
// the first error is returned after every schedule has been attempted.
func (e *Engine) AccumulateBatch(ctx context.Context, schedules []generic.Schedule, asOf generic.TimePoint) ([]*Result, error) {
	results := make([]*Result, len(schedules))
	var g errgroup.Group
	g.SetLimit(e.batchLimit)
	for i, s := range schedules {
		g.Go(func() error {
			r, err := e.Accumulate(ctx, s, asOf)
			results[i] = r
			if err != nil {
				return fmt.Errorf("schedule %s: %w", s.ID, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// =============================================================================
// RANKINGS
// =============================================================================

func credit(rankings []generic.Ranking, name string, qty decimal.Decimal, weekly bool) []generic.Ranking {
	for i := range rankings {
		if rankings[i].Name == name {
			rankings[i].Quantity = rankings[i].Quantity.Add(qty)
			if weekly {
				rankings[i].WeekQuantity = rankings[i].WeekQuantity.Add(qty)
			}
			return rankings
		}
	}
	row := generic.Ranking{Name: name, Quantity: qty, WeekQuantity: decimal.Zero}
	if weekly {
		row.WeekQuantity = qty
	}
	return append(rankings, row)
}

// Rank sorts by descending Quantity, keeping the prior order of ties, and
// assigns ranks 1..N. Ranking an already ranked list changes nothing.
func Rank(rankings []generic.Ranking) []generic.Ranking {
	out := append([]generic.Ranking(nil), rankings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quantity.GreaterThan(out[j].Quantity)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func stampItem(item *generic.RawWorkItem, name string, date generic.TimePoint) {
	if item.LastAccumulatedBy == nil {
		item.LastAccumulatedBy = make(map[string]string)
	}
	item.LastAccumulatedBy[name] = date.String()
}
