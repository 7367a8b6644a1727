package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/generic/store"
	"github.com/warp/crew-engine/scoring"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type staticRules struct {
	rules   []generic.CompletionRateRule
	penalty generic.PenaltyConfig
}

func (s *staticRules) CompletionRateRules(context.Context) ([]generic.CompletionRateRule, error) {
	return s.rules, nil
}

func (s *staticRules) PenaltyConfig(context.Context) (generic.PenaltyConfig, error) {
	return s.penalty, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int { return &n }

func assertDec(t *testing.T, want string, got decimal.Decimal, what string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s got %s", what, want, got)
}

// exampleRules is [0,60) -> -10, [60,∞) -> 0.
func exampleRules() *staticRules {
	return &staticRules{
		rules: []generic.CompletionRateRule{
			{MinRate: dec("0"), MaxRate: decPtr("60"), Delta: dec("-10")},
			{MinRate: dec("60"), MaxRate: nil, Delta: dec("0")},
		},
		penalty: generic.PenaltyConfig{
			Enabled:                       true,
			LatePenaltyPerOccurrence:      dec("-1"),
			NoClockInPenaltyPerOccurrence: dec("-2"),
		},
	}
}

type fixture struct {
	mem    *store.Memory
	rules  *staticRules
	engine *scoring.Engine
}

func newFixture(t *testing.T, rules *staticRules, opts ...scoring.Option) *fixture {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveWorker(context.Background(), generic.Worker{ID: "u-a", Name: "A"}))
	engine := scoring.NewEngine(scoring.Sources{
		Schedules:   mem,
		Attendance:  mem,
		Adjustments: mem,
		Rules:       rules,
		Workers:     mem,
	}, opts...)
	return &fixture{mem: mem, rules: rules, engine: engine}
}

func (f *fixture) schedule(t *testing.T, id, date string, items ...generic.RawWorkItem) {
	t.Helper()
	require.NoError(t, f.mem.SaveSchedule(context.Background(), generic.Schedule{
		ID: generic.ScheduleID(id), Date: generic.MustParseDate(date), WorkItems: items,
	}))
}

func (f *fixture) attendance(t *testing.T, class generic.Classification, dates ...string) {
	t.Helper()
	var recs []generic.AttendanceRecord
	for _, d := range dates {
		recs = append(recs, generic.AttendanceRecord{WorkerID: "u-a", Date: generic.MustParseDate(d), Classification: class, IsLate: class == generic.ClassLate})
	}
	require.NoError(t, f.mem.SaveAttendance(context.Background(), recs))
}

func solo(person string, target, actual float64) generic.RawWorkItem {
	return generic.RawWorkItem{
		Content:           "鋪設管線",
		ResponsiblePerson: person,
		TargetQuantity:    generic.NewNumber(target),
		ActualQuantity:    generic.NewNumber(actual),
	}
}

var (
	january = generic.MonthPeriod(2026, time.January)
	jan31   = generic.MustParseDate("2026-01-31")
)

// =============================================================================
// SCORE
// =============================================================================

func TestScore_EndToEndExample(t *testing.T) {
	// GIVEN: one solo item on 2026-01-10, target 4 actual 2 (50%)
	f := newFixture(t, exampleRules())
	ctx := context.Background()
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2))

	// WHEN
	b, err := f.engine.Score(ctx, "u-a", january, jan31)

	// THEN: -10 completion adjustment, score 90
	require.NoError(t, err)
	assertDec(t, "-10", b.CompletionRateAdjustment, "completion adjustment")
	assertDec(t, "90", b.Score, "score")
	assertDec(t, "50", b.AverageCompletionRate, "average rate")
	require.Len(t, b.Items, 1)
	assertDec(t, "50", b.Items[0].Rate, "item rate")
}

func TestScore_RuleChangeLeavesAverageUntouched(t *testing.T) {
	// GIVEN: two items, 50% and 100%
	f := newFixture(t, exampleRules())
	ctx := context.Background()
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2))
	f.schedule(t, "s-2", "2026-01-12", solo("A", 5, 5))

	before, err := f.engine.Score(ctx, "u-a", january, jan31)
	require.NoError(t, err)

	// WHEN: the rule table is edited
	f.rules.rules = []generic.CompletionRateRule{
		{MinRate: dec("0"), MaxRate: decPtr("80"), Delta: dec("-3")},
		{MinRate: dec("80"), MaxRate: nil, Delta: dec("2")},
	}
	after, err := f.engine.Score(ctx, "u-a", january, jan31)
	require.NoError(t, err)

	// THEN: adjustment changes, average does not
	assertDec(t, "-10", before.CompletionRateAdjustment, "before")
	assertDec(t, "-1", after.CompletionRateAdjustment, "after")
	assert.True(t, before.AverageCompletionRate.Equal(after.AverageCompletionRate))
	assertDec(t, "75", after.AverageCompletionRate, "average")
}

func TestScore_AverageRoundsOnce(t *testing.T) {
	// GIVEN: rates 10.004% and 10.0059%, shown as 10.00 and 10.01
	f := newFixture(t, exampleRules())
	f.schedule(t, "s-1", "2026-01-10", solo("A", 100, 10.004), solo("A", 100, 10.0059))

	// WHEN
	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)

	// THEN: the mean of the exact rates is 10.00495, so 10.00 and not 10.01
	require.NoError(t, err)
	require.Len(t, b.Items, 2)
	assertDec(t, "10", b.Items[0].Rate, "first line")
	assertDec(t, "10.01", b.Items[1].Rate, "second line")
	assertDec(t, "10", b.AverageCompletionRate, "average")
}

func TestScore_DeltaIsPerItemNotFromAverage(t *testing.T) {
	// GIVEN: 50% and 100%; the average 75% would give 0, per item gives -10
	f := newFixture(t, exampleRules())
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2), solo("A", 2, 2))

	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)

	require.NoError(t, err)
	assertDec(t, "-10", b.CompletionRateAdjustment, "completion adjustment")
}

func TestScore_AllComponents(t *testing.T) {
	f := newFixture(t, exampleRules())
	ctx := context.Background()
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 4))
	f.attendance(t, generic.ClassLate, "2026-01-05", "2026-01-06")
	f.attendance(t, generic.ClassNoClockIn, "2026-01-07")
	f.attendance(t, generic.ClassLeave, "2026-01-08")
	require.NoError(t, f.mem.AppendAdjustment(ctx, generic.PerformanceAdjustment{
		ID: "adj-1", WorkerID: "u-a", Date: generic.MustParseDate("2026-01-15"), Delta: dec("3.5"),
	}))

	b, err := f.engine.Score(ctx, "u-a", january, jan31)

	require.NoError(t, err)
	assert.Equal(t, 2, b.LateCount)
	assert.Equal(t, 1, b.NoClockInCount)
	assertDec(t, "-2", b.LatePenalty, "late")
	assertDec(t, "-2", b.NoClockInPenalty, "no clock-in")
	assertDec(t, "3.5", b.AdjustmentTotal, "adjustments")
	assertDec(t, "99.5", b.Score, "score")
}

func TestScore_PendingItemsExcluded(t *testing.T) {
	f := newFixture(t, exampleRules())
	pending := solo("A", 4, 1)
	pending.ChangeRequestStatus = "pending"
	f.schedule(t, "s-1", "2026-01-10", pending)

	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)

	require.NoError(t, err)
	assert.Empty(t, b.Items)
	assertDec(t, "100", b.Score, "score")
	assertDec(t, "0", b.AverageCompletionRate, "average")
}

func TestScore_TruncatedToAsOf(t *testing.T) {
	f := newFixture(t, exampleRules())
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2))
	f.schedule(t, "s-2", "2026-01-20", solo("A", 4, 1))

	b, err := f.engine.Score(context.Background(), "u-a", january, generic.MustParseDate("2026-01-15"))

	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", b.Period.End.String())
	assertDec(t, "90", b.Score, "future item not counted")
}

func TestScore_FutureRangeIsBaseScore(t *testing.T) {
	f := newFixture(t, exampleRules())

	b, err := f.engine.Score(context.Background(), "u-a", generic.MonthPeriod(2026, time.March), jan31)

	require.NoError(t, err)
	assertDec(t, "100", b.Score, "score")
}

func TestScore_UnknownWorker(t *testing.T) {
	f := newFixture(t, exampleRules())

	_, err := f.engine.Score(context.Background(), "nobody", january, jan31)

	assert.ErrorIs(t, err, generic.ErrWorkerNotFound)
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// RULE CONFIGURATION ERRORS
// =============================================================================

func TestScore_MalformedRuleFailsClosed(t *testing.T) {
	// GIVEN: the bracket that would price 50% is inverted
	rules := exampleRules()
	rules.rules[0].MaxRate = decPtr("0")
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, rules, scoring.WithLogger(zap.New(core)))
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2))

	// WHEN
	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)

	// THEN: zero delta, no error, reported
	require.NoError(t, err)
	assertDec(t, "0", b.CompletionRateAdjustment, "completion adjustment")
	assertDec(t, "100", b.Score, "score")
	assert.Equal(t, 1, logs.FilterMessage("rule ignored").Len())
}

func TestScore_DisabledPenalties(t *testing.T) {
	rules := exampleRules()
	rules.penalty.Enabled = false
	f := newFixture(t, rules)
	f.attendance(t, generic.ClassLate, "2026-01-05")

	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)

	require.NoError(t, err)
	assert.Equal(t, 1, b.LateCount)
	assertDec(t, "0", b.LatePenalty, "late")
	assert.Equal(t, "disabled", b.LatePolicy)
}

// =============================================================================
// DAILY
// =============================================================================

func TestDaily_LastDayEqualsMonthlyScore(t *testing.T) {
	f := newFixture(t, exampleRules())
	ctx := context.Background()
	f.schedule(t, "s-1", "2026-01-10", solo("A", 4, 2))
	f.attendance(t, generic.ClassLate, "2026-01-05")
	require.NoError(t, f.mem.AppendAdjustment(ctx, generic.PerformanceAdjustment{
		ID: "adj-1", WorkerID: "u-a", Date: generic.MustParseDate("2026-01-20"), Delta: dec("2"),
	}))

	days, err := f.engine.Daily(ctx, "u-a", january, jan31)
	require.NoError(t, err)
	score, err := f.engine.Score(ctx, "u-a", january, jan31)
	require.NoError(t, err)

	require.Len(t, days, 31)
	assert.True(t, days[30].Cumulative.Equal(score.Score))
	assertDec(t, "-1", days[4].Delta, "Jan 5 late")
	assertDec(t, "-10", days[9].Delta, "Jan 10 item")
	assertDec(t, "2", days[19].Delta, "Jan 20 adjustment")
	assertDec(t, "0", days[0].Delta, "quiet day")

	sum := decimal.Zero
	for _, d := range days {
		sum = sum.Add(d.Delta)
	}
	assert.True(t, scoring.BaseScore.Add(sum).Equal(score.Score), "deltas add up")
}

func TestDaily_TieredPenaltyGivesNonUniformDeltas(t *testing.T) {
	// GIVEN: 1st-2nd late cost -1 each, from the 3rd on -3 each
	rules := exampleRules()
	rules.penalty.LateTiers = []generic.CountTier{
		{MinCount: 1, MaxCount: intPtr(2), PenaltyPerOccurrence: dec("-1")},
		{MinCount: 3, MaxCount: nil, PenaltyPerOccurrence: dec("-3")},
	}
	f := newFixture(t, rules)
	f.attendance(t, generic.ClassLate, "2026-01-05", "2026-01-06", "2026-01-07")

	days, err := f.engine.Daily(context.Background(), "u-a", january, jan31)
	require.NoError(t, err)

	assertDec(t, "-1", days[4].Delta, "1st")
	assertDec(t, "-1", days[5].Delta, "2nd")
	assertDec(t, "-3", days[6].Delta, "3rd")
	assert.Equal(t, 3, days[6].LateCount)
	assertDec(t, "95", days[30].Cumulative, "final")

	b, err := f.engine.Score(context.Background(), "u-a", january, jan31)
	require.NoError(t, err)
	assert.Equal(t, "tiered", b.LatePolicy)
	assertDec(t, "-5", b.LatePenalty, "tiered total")
}

func TestDaily_StopsAtAsOf(t *testing.T) {
	f := newFixture(t, exampleRules())

	days, err := f.engine.Daily(context.Background(), "u-a", january, generic.MustParseDate("2026-01-10"))

	require.NoError(t, err)
	assert.Len(t, days, 10)
}
