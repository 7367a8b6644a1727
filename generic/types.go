/*
Package generic provides the shared vocabulary of the crew performance engine.

PURPOSE:
  Every engine package (workitem, accumulation, attendance, scoring) speaks
  in these types. They are plain records: the rules that act on them live in
  the engine packages, the persistence that stores them lives behind the
  interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity helpers: work units, percentages and score points are
    decimal.Decimal so rounding is deterministic
  - Identifiers: type-safe ids for workers, leaderboards, schedules
  - Leaderboard / Ranking: the public contribution aggregate
  - AttendanceRecord: one canonical classification per worker per day
  - PerformanceAdjustment: append-only manual score corrections
  - LeaveApplication: only approved ones suppress no-clock-in

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere a number is summed
  2. Type Safety: distinct id types so a worker id is never a leaderboard id
  3. Explicit time: no type here reads the wall clock

SEE ALSO:
  - time.go, period.go: calendar-day arithmetic
  - rules.go: completion-rate and penalty rule tables
  - ledger.go: the accumulation idempotency ledger
  - store.go: external store contracts
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY HELPERS
// =============================================================================

// ScoreScale is the number of decimal places scores and rates are rounded to.
const ScoreScale = 2

// Hundred is the completion-rate multiplier.
var Hundred = decimal.NewFromInt(100)

func Dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func DecInt(v int) decimal.Decimal { return decimal.NewFromInt(int64(v)) }

// MustParseDecimal returns zero for anything that is not a number.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round rounds half away from zero to ScoreScale places.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(ScoreScale) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type LeaderboardID string
type ScheduleID string
type AdjustmentID string
type LeaveID string

// Worker binds a login identity to the name used on schedules.
type Worker struct {
	ID   WorkerID
	Name string
}

// =============================================================================
// LEADERBOARD - Public contribution aggregate
// =============================================================================

type Leaderboard struct {
	ID          LeaderboardID
	WorkContent string
	Title       string
	Name        string

	// ResetAt is set once the leaderboard has had a weekly reset. Only
	// leaderboards with a reset feed WeekQuantity.
	ResetAt *time.Time
}

// HasBeenReset reports whether WeekQuantity is being tracked.
func (lb Leaderboard) HasBeenReset() bool { return lb.ResetAt != nil }

type Ranking struct {
	Name         string
	Quantity     decimal.Decimal // cumulative total
	WeekQuantity decimal.Decimal // cumulative since the last reset
	Rank         int
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type Classification string

const (
	ClassNormal    Classification = "normal"
	ClassLate      Classification = "late"
	ClassNoClockIn Classification = "no-clock-in"
	ClassLeave     Classification = "leave"
)

// AttendanceRecord is the canonical result for one (worker, date).
type AttendanceRecord struct {
	WorkerID       WorkerID
	Date           TimePoint
	ClockIn        *time.Time
	IsLate         bool
	Classification Classification
	Details        string
	Synthesized    bool // inferred from a missing business day
}

// LeaveStatus mirrors the approval workflow of leave applications.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

type LeaveApplication struct {
	ID       LeaveID
	WorkerID WorkerID
	Kind     string // e.g. "annual", "sick", "special"
	Start    TimePoint
	End      TimePoint
	Status   LeaveStatus
	Reason   string
}

// Covers reports whether an approved application includes day.
func (la LeaveApplication) Covers(worker WorkerID, day TimePoint) bool {
	return la.Status == LeaveApproved && la.WorkerID == worker &&
		day.AfterOrEqual(la.Start) && day.BeforeOrEqual(la.End)
}

// =============================================================================
// PERFORMANCE ADJUSTMENT - Append-only manual correction
// =============================================================================

type PerformanceAdjustment struct {
	ID        AdjustmentID
	WorkerID  WorkerID
	Date      TimePoint
	Delta     decimal.Decimal
	Note      string
	Evaluator string
	CreatedAt time.Time
}
