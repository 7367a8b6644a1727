/*
Package scoring computes monthly performance scores.

PURPOSE:
  A worker's score for an inclusive date range (usually a calendar month,
  truncated to asOf) is:

    Score = 100
          + Σ manual adjustments
          + Σ completion-rate deltas, one per work item per contributor
          + late penalty(late count)
          + no-clock-in penalty(no-clock-in count)

  The completion-rate delta is looked up per item, never from the averaged
  rate. AverageCompletionRate is reported for display only and does not
  feed the score.

DAILY MODE:
  Daily replays the range one day at a time, carrying running totals and
  running occurrence counts. Each day's Delta is its cumulative score minus
  the previous day's (the first day is compared with 100). The last day's
  cumulative score always equals Score for the same range.

PENDING ITEMS:
  Items with a pending change request are excluded from scoring entirely.
  Accumulation ignores that flag.

SEE ALSO:
  - rules.go: completion-rate table lookup
  - penalty.go: flat and tiered penalty policies
*/
package scoring

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/workitem"
)

// BaseScore is every worker's starting score.
var BaseScore = decimal.NewFromInt(100)

// =============================================================================
// BREAKDOWN
// =============================================================================

// ItemLine is one priced work item.
type ItemLine struct {
	Date       generic.TimePoint
	ScheduleID generic.ScheduleID
	ItemKey    string
	Content    string
	Target     decimal.Decimal
	Actual     decimal.Decimal
	Rate       decimal.Decimal // rounded for display
	Delta      decimal.Decimal
}

type Breakdown struct {
	WorkerID generic.WorkerID
	Name     string
	Period   generic.Period // after truncation to asOf
	AsOf     generic.TimePoint

	Base                     decimal.Decimal
	AdjustmentTotal          decimal.Decimal
	CompletionRateAdjustment decimal.Decimal
	AverageCompletionRate    decimal.Decimal
	LateCount                int
	NoClockInCount           int
	LatePenalty              decimal.Decimal
	NoClockInPenalty         decimal.Decimal
	Score                    decimal.Decimal

	LatePolicy      string
	NoClockInPolicy string

	Items       []ItemLine
	Adjustments []generic.PerformanceAdjustment
}

// DayScore is one day of the cumulative replay.
type DayScore struct {
	Date            generic.TimePoint
	Cumulative      decimal.Decimal
	Delta           decimal.Decimal
	AdjustmentDelta decimal.Decimal
	CompletionDelta decimal.Decimal
	PenaltyDelta    decimal.Decimal
	Late            bool
	NoClockIn       bool
	LateCount       int
	NoClockInCount  int
}

// =============================================================================
// ENGINE
// =============================================================================

// Sources are the stores the engine reads. Scoring never writes.
type Sources struct {
	Schedules   generic.ScheduleSource
	Attendance  generic.AttendanceStore
	Adjustments generic.AdjustmentStore
	Rules       generic.RuleSource
	Workers     generic.WorkerDirectory
}

type Engine struct {
	src    Sources
	logger *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(src Sources, opts ...Option) *Engine {
	e := &Engine{src: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// dayFacts is everything that happened to the worker on one day.
type dayFacts struct {
	adjustments []generic.PerformanceAdjustment
	items       []ItemLine
	rates       []decimal.Decimal // unrounded, parallel to items
	late        bool
	noClockIn   bool
}

type inputs struct {
	worker    generic.Worker
	period    generic.Period
	inRange   bool
	days      map[string]*dayFacts
	late      PenaltyPolicy
	noClockIn PenaltyPolicy
}

// Score computes the worker's score over period as of asOf.
func (e *Engine) Score(ctx context.Context, worker generic.WorkerID, period generic.Period, asOf generic.TimePoint) (*Breakdown, error) {
	in, err := e.collect(ctx, worker, period, asOf)
	if err != nil {
		return nil, err
	}

	b := &Breakdown{
		WorkerID:                 worker,
		Name:                     in.worker.Name,
		Period:                   in.period,
		AsOf:                     asOf,
		Base:                     BaseScore,
		AdjustmentTotal:          decimal.Zero,
		CompletionRateAdjustment: decimal.Zero,
		AverageCompletionRate:    decimal.Zero,
		LatePolicy:               in.late.Name(),
		NoClockInPolicy:          in.noClockIn.Name(),
	}
	rateSum := decimal.Zero
	if in.inRange {
		for _, day := range in.period.Days() {
			f, ok := in.days[day.String()]
			if !ok {
				continue
			}
			for _, adj := range f.adjustments {
				b.AdjustmentTotal = b.AdjustmentTotal.Add(adj.Delta)
				b.Adjustments = append(b.Adjustments, adj)
			}
			for i, line := range f.items {
				b.CompletionRateAdjustment = b.CompletionRateAdjustment.Add(line.Delta)
				rateSum = rateSum.Add(f.rates[i])
				b.Items = append(b.Items, line)
			}
			if f.late {
				b.LateCount++
			}
			if f.noClockIn {
				b.NoClockInCount++
			}
		}
	}
	if len(b.Items) > 0 {
		b.AverageCompletionRate = generic.Round(rateSum.Div(decimal.NewFromInt(int64(len(b.Items)))))
	}
	b.LatePenalty = in.late.Cost(b.LateCount)
	b.NoClockInPenalty = in.noClockIn.Cost(b.NoClockInCount)
	b.CompletionRateAdjustment = generic.Round(b.CompletionRateAdjustment)
	b.Score = generic.Round(BaseScore.
		Add(b.AdjustmentTotal).
		Add(b.CompletionRateAdjustment).
		Add(b.LatePenalty).
		Add(b.NoClockInPenalty))
	return b, nil
}

// Daily returns the cumulative score for every day of the range up to asOf.
func (e *Engine) Daily(ctx context.Context, worker generic.WorkerID, period generic.Period, asOf generic.TimePoint) ([]DayScore, error) {
	in, err := e.collect(ctx, worker, period, asOf)
	if err != nil {
		return nil, err
	}
	if !in.inRange {
		return nil, nil
	}

	var (
		out        []DayScore
		adjTotal   = decimal.Zero
		compTotal  = decimal.Zero
		lateCount  int
		noClkCount int
		previous   = BaseScore
	)
	for _, day := range in.period.Days() {
		ds := DayScore{Date: day, AdjustmentDelta: decimal.Zero, CompletionDelta: decimal.Zero}
		prevPenalty := in.late.Cost(lateCount).Add(in.noClockIn.Cost(noClkCount))

		if f, ok := in.days[day.String()]; ok {
			for _, adj := range f.adjustments {
				ds.AdjustmentDelta = ds.AdjustmentDelta.Add(adj.Delta)
			}
			for _, line := range f.items {
				ds.CompletionDelta = ds.CompletionDelta.Add(line.Delta)
			}
			if f.late {
				lateCount++
				ds.Late = true
			}
			if f.noClockIn {
				noClkCount++
				ds.NoClockIn = true
			}
		}
		adjTotal = adjTotal.Add(ds.AdjustmentDelta)
		compTotal = compTotal.Add(ds.CompletionDelta)
		penalty := in.late.Cost(lateCount).Add(in.noClockIn.Cost(noClkCount))

		ds.PenaltyDelta = penalty.Sub(prevPenalty)
		ds.LateCount = lateCount
		ds.NoClockInCount = noClkCount
		ds.Cumulative = generic.Round(BaseScore.Add(adjTotal).Add(generic.Round(compTotal)).Add(penalty))
		ds.Delta = ds.Cumulative.Sub(previous)
		previous = ds.Cumulative
		out = append(out, ds)
	}
	return out, nil
}

// collect loads every input for the truncated range, grouped by day.
func (e *Engine) collect(ctx context.Context, id generic.WorkerID, period generic.Period, asOf generic.TimePoint) (*inputs, error) {
	if period.End.Before(period.Start) {
		return nil, generic.ErrInvalidPeriod
	}
	worker, err := e.src.Workers.LoadWorker(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load worker %s: %w", id, err)
	}
	late, noClockIn, table, err := e.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	in := &inputs{worker: worker, late: late, noClockIn: noClockIn, days: make(map[string]*dayFacts)}
	in.period, in.inRange = period.TruncateTo(asOf)
	if !in.inRange {
		in.period = period
		return in, nil
	}
	from, to := in.period.Start, in.period.End
	day := func(tp generic.TimePoint) *dayFacts {
		f, ok := in.days[tp.String()]
		if !ok {
			f = &dayFacts{}
			in.days[tp.String()] = f
		}
		return f
	}

	adjustments, err := e.src.Adjustments.LoadAdjustments(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}
	for _, adj := range adjustments {
		f := day(adj.Date)
		f.adjustments = append(f.adjustments, adj)
	}

	records, err := e.src.Attendance.LoadAttendance(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	for _, rec := range records {
		switch rec.Classification {
		case generic.ClassLate:
			day(rec.Date).late = true
		case generic.ClassNoClockIn:
			day(rec.Date).noClockIn = true
		}
	}

	schedules, err := e.src.Schedules.LoadSchedulesInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	for _, s := range schedules {
		for _, raw := range s.WorkItems {
			item := workitem.Normalize(raw)
			if item.Skippable() || item.PendingChange {
				continue
			}
			for _, c := range item.Contributors {
				if c.Name != worker.Name {
					continue
				}
				rate := workitem.CompletionRate(item, c.Name)
				f := day(s.Date)
				f.items = append(f.items, ItemLine{
					Date:       s.Date,
					ScheduleID: s.ID,
					ItemKey:    item.Key(),
					Content:    item.Content,
					Target:     workitem.TargetFor(item, c.Name),
					Actual:     workitem.ActualFor(item, c.Name),
					Rate:       generic.Round(rate),
					Delta:      table.Delta(rate),
				})
				f.rates = append(f.rates, rate)
			}
		}
	}
	return in, nil
}

func (e *Engine) loadRules(ctx context.Context) (PenaltyPolicy, PenaltyPolicy, RateTable, error) {
	rules, err := e.src.Rules.CompletionRateRules(ctx)
	if err != nil {
		return nil, nil, RateTable{}, fmt.Errorf("load completion rules: %w", err)
	}
	cfg, err := e.src.Rules.PenaltyConfig(ctx)
	if err != nil {
		return nil, nil, RateTable{}, fmt.Errorf("load penalty config: %w", err)
	}

	table, tableErrs := NewRateTable(rules)
	late, noClockIn, penaltyErrs := PoliciesFor(cfg)
	for _, err := range append(tableErrs, penaltyErrs...) {
		e.logger.Warn("rule ignored", zap.Error(err))
	}
	if late.Name() == "tiered" || noClockIn.Name() == "tiered" {
		e.logger.Debug("tiered penalty policy active",
			zap.String("late", late.Name()),
			zap.String("no_clock_in", noClockIn.Name()))
	}
	return late, noClockIn, table, nil
}
