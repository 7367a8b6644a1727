/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Engine packages wrap these errors with additional context; the api
  package maps them to HTTP status codes through the helpers below.

ERROR CATEGORIES:
  1. Persistence errors - ranking save / ledger stamp failures (retryable)
  2. Lookup errors - missing leaderboard, worker, adjustment
  3. Input errors - malformed periods, rules, attendance rows

USAGE:
  if errors.Is(err, generic.ErrRankingSaveFailed) {
      // nothing was stamped, the caller may retry the save
  }

SEE ALSO:
  - accumulation/engine.go: wraps ranking save failures
  - factory/rules.go: produces RuleError diagnostics
  - attendance/parse.go: produces RowError diagnostics
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRankingSaveFailed is returned when the leaderboard ranking write fails.
	// The idempotency ledger is never advanced in that case.
	ErrRankingSaveFailed = errors.New("ranking save failed")

	// ErrLedgerStampFailed is returned when rankings were saved but the ledger
	// could not record it. Only reachable with stores that cannot write both
	// in one transaction.
	ErrLedgerStampFailed = errors.New("accumulation ledger stamp failed")

	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	ErrWorkerNotFound      = errors.New("worker not found")
	ErrAdjustmentNotFound  = errors.New("adjustment not found")
	ErrLeaveNotFound       = errors.New("leave application not found")
	ErrScheduleNotFound    = errors.New("schedule not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidRule marks a rule-table entry that was ignored.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidRow marks an attendance row that was dropped.
	ErrInvalidRow = errors.New("invalid attendance row")

	// ErrConcurrentModification is returned when a store detects a lost update.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SaveError reports which leaderboard failed to persist.
type SaveError struct {
	LeaderboardID LeaderboardID
	Op            string
	Err           error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s for leaderboard %s: %v", e.Op, e.LeaderboardID, e.Err)
}

func (e *SaveError) Unwrap() []error {
	switch e.Op {
	case "stamp ledger":
		return []error{ErrLedgerStampFailed, e.Err}
	default:
		return []error{ErrRankingSaveFailed, e.Err}
	}
}

// RuleError describes one ignored rule-table entry.
type RuleError struct {
	Table  string // "completion_rate", "late_tiers", "penalty"
	Index  int
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Table, e.Index, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// RowError describes one dropped attendance row.
type RowError struct {
	Row      int
	WorkerID WorkerID
	Field    string
	Value    string
	Reason   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %s %q: %s", e.Row, e.WorkerID, e.Field, e.Value, e.Reason)
}

func (e *RowError) Unwrap() error { return ErrInvalidRow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRankingSaveFailed) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidRow)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeaderboardNotFound) ||
		errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound) ||
		errors.Is(err, ErrLeaveNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}
