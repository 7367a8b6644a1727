/*
ledger.go - Accumulation idempotency ledger

PURPOSE:
  Records, per (leaderboard, work item, contributor), the last schedule
  date whose quantity was added to that leaderboard. The accumulation
  engine consults it before every add and advances it after every
  successful ranking save, so re-saving a schedule is a no-op.

CRITICAL INVARIANTS:
  1. FORWARD-ONLY: a stamp never moves a watermark backwards
  2. STAMP AFTER SAVE: nothing is stamped unless the rankings were saved
  3. INDEPENDENT OF THE ITEM: the ledger is keyed by value, so replacing
     or copying a work item record never loses a stamp

EXAMPLE FLOW:
  1. Schedule 2026-02-01 saved: 王小明 +5 on "管線A", ledger -> 2026-02-01
  2. Same schedule saved again: watermark 2026-02-01 >= 2026-02-01, skip
  3. Schedule 2026-01-31 edited later: watermark is newer, skip

SEE ALSO:
  - accumulation/engine.go: the only writer
  - store.go: stores that can commit rankings and stamps together
*/
package generic

import (
	"context"
	"fmt"
)

// =============================================================================
// LEDGER KEY
// =============================================================================

// LedgerKey identifies one contributor's accumulation stream on one
// leaderboard for one work item. ItemKey is the item's stable id, or its
// content when the item has no id.
type LedgerKey struct {
	LeaderboardID LeaderboardID
	ItemKey       string
	Contributor   string
}

func (k LedgerKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.LeaderboardID, k.ItemKey, k.Contributor)
}

// LedgerStamp advances one key to Date.
type LedgerStamp struct {
	Key        LedgerKey
	Date       TimePoint
	ScheduleID ScheduleID
}

// =============================================================================
// ACCUMULATION LEDGER
// =============================================================================

// AccumulationLedger is the explicit idempotency store.
type AccumulationLedger interface {
	// Watermark returns the last accumulated date for key. The bool is false
	// when the key has never been stamped.
	Watermark(ctx context.Context, key LedgerKey) (TimePoint, bool, error)

	// Stamp advances every key atomically. A stamp older than the current
	// watermark leaves the watermark in place.
	Stamp(ctx context.Context, stamps []LedgerStamp) error
}

// AlreadyAccumulated reports whether a watermark blocks date. Equal dates
// block, and so do later ones: a day is never re-counted once a later day
// has been recorded.
func AlreadyAccumulated(watermark TimePoint, stamped bool, date TimePoint) bool {
	return stamped && watermark.AfterOrEqual(date)
}

// Advance returns the watermark after applying a stamp for date.
func Advance(watermark TimePoint, stamped bool, date TimePoint) TimePoint {
	if stamped && watermark.After(date) {
		return watermark
	}
	return date
}
