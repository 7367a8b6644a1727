/*
store.go - Contracts with the external store

PURPOSE:
  Defines the interface between the engines and persistence. The engines
  only ever see these narrow interfaces; the in-memory and SQLite stores
  implement all of them.

KEY INTERFACES:
  ScheduleSource:      schedules by date range
  LeaderboardStore:    leaderboards plus full-replace ranking writes
  AccumulationTxStore: commit rankings and ledger stamps together
  RuleSource:          completion-rate rules and penalty config (hot reloadable)
  AttendanceStore:     canonical attendance records
  AdjustmentStore:     append-only manual score corrections
  LeaveSource:         leave applications (only approved ones are honored)

FULL REPLACE:
  SaveRankings replaces the whole ranking list of a leaderboard. Callers
  always load, mutate, re-rank and save under the leaderboard's lock.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: in-memory for tests and dev

SEE ALSO:
  - ledger.go: AccumulationLedger
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// SCHEDULES
// =============================================================================

type ScheduleSource interface {
	// LoadSchedulesInRange returns schedules dated in [start, end], by date.
	LoadSchedulesInRange(ctx context.Context, start, end TimePoint) ([]Schedule, error)
}

type ScheduleStore interface {
	ScheduleSource
	SaveSchedule(ctx context.Context, s Schedule) error
	LoadSchedule(ctx context.Context, id ScheduleID) (Schedule, error)
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

type LeaderboardSource interface {
	LoadLeaderboards(ctx context.Context) ([]Leaderboard, error)
}

type RankingStore interface {
	LoadRankings(ctx context.Context, id LeaderboardID) ([]Ranking, error)
	// SaveRankings replaces the stored list.
	SaveRankings(ctx context.Context, id LeaderboardID, rankings []Ranking) error
}

type LeaderboardStore interface {
	LeaderboardSource
	RankingStore
}

// AccumulationTxStore commits a ranking save and its ledger stamps in one
// transaction. If fn returns an error nothing is committed.
type AccumulationTxStore interface {
	WithAccumulationTx(ctx context.Context, fn func(RankingStore, AccumulationLedger) error) error
}

// LeaderboardAdmin covers leaderboard maintenance outside accumulation.
type LeaderboardAdmin interface {
	SaveLeaderboard(ctx context.Context, lb Leaderboard) error
	LoadLeaderboard(ctx context.Context, id LeaderboardID) (Leaderboard, error)
	// ResetLeaderboard stamps ResetAt and zeroes every WeekQuantity.
	ResetLeaderboard(ctx context.Context, id LeaderboardID, at time.Time) error
}

// =============================================================================
// RULES
// =============================================================================

// RuleSource is read on every scoring call; implementations may reload
// between calls.
type RuleSource interface {
	CompletionRateRules(ctx context.Context) ([]CompletionRateRule, error)
	PenaltyConfig(ctx context.Context) (PenaltyConfig, error)
}

// RuleDocumentStore persists the raw rule document as edited. The bool is
// false when no document has ever been saved.
type RuleDocumentStore interface {
	LoadRuleDocument(ctx context.Context) ([]byte, bool, error)
	SaveRuleDocument(ctx context.Context, doc []byte) error
}

// =============================================================================
// ATTENDANCE, ADJUSTMENTS, LEAVE
// =============================================================================

type AttendanceStore interface {
	// LoadAttendance returns the worker's records in [from, to], by date.
	LoadAttendance(ctx context.Context, worker WorkerID, from, to TimePoint) ([]AttendanceRecord, error)
	// SaveAttendance upserts by (worker, date) atomically.
	SaveAttendance(ctx context.Context, records []AttendanceRecord) error
}

type AdjustmentStore interface {
	// LoadAdjustments returns the worker's adjustments dated in [from, to].
	LoadAdjustments(ctx context.Context, worker WorkerID, from, to TimePoint) ([]PerformanceAdjustment, error)
}

// AdjustmentLog is append-only: entries are added or deleted, never edited.
type AdjustmentLog interface {
	AdjustmentStore
	AppendAdjustment(ctx context.Context, adj PerformanceAdjustment) error
	DeleteAdjustment(ctx context.Context, id AdjustmentID) error
}

type LeaveSource interface {
	LoadLeaveApplications(ctx context.Context) ([]LeaveApplication, error)
}

type LeaveStore interface {
	LeaveSource
	SaveLeaveApplication(ctx context.Context, la LeaveApplication) error
	LoadLeaveApplication(ctx context.Context, id LeaveID) (LeaveApplication, error)
}

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDirectory interface {
	LoadWorker(ctx context.Context, id WorkerID) (Worker, error)
	LoadWorkers(ctx context.Context) ([]Worker, error)
}

type WorkerStore interface {
	WorkerDirectory
	SaveWorker(ctx context.Context, w Worker) error
}

// =============================================================================
// STORE - Everything one backend provides
// =============================================================================

type Store interface {
	ScheduleStore
	LeaderboardStore
	LeaderboardAdmin
	AccumulationTxStore
	AccumulationLedger
	RuleDocumentStore
	AttendanceStore
	AdjustmentLog
	LeaveStore
	WorkerStore
}
