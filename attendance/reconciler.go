/*
Package attendance collapses punch-clock rows into one canonical record per
worker per day.

PURPOSE:
  Imported punch files contain duplicates, leave markers, timezone artifacts
  on weekends and gaps. The reconciler turns them into exactly one
  AttendanceRecord per (worker, date) that the scoring engine can count.

MERGE PRECEDENCE (highest wins):
  1. leave
  2. a clock-in time (earliest wins)
  3. no-clock-in marker
  Remaining ties keep the first row in input order.

NO-CLOCK-IN INFERENCE:
  For a worker with at least one valid row, every business day (Monday to
  Friday, not a holiday) in the observed span without any row becomes a
  synthesized no-clock-in, unless an approved leave covers it, in which case
  it is recorded as leave. Weekend no-clock-in rows are dropped: they are
  almost always misclassified leave.

LATENESS:
  IsLate = clock-in > work start, strictly, same-day compare.

SEE ALSO:
  - rows.go: raw row parsing and diagnostics
  - importer.go: batch import against the attendance store
*/
package attendance

import (
	"sort"
	"time"

	"github.com/warp/crew-engine/generic"
)

// Options configures reconciliation.
type Options struct {
	WorkStart generic.ClockTime
	Location  *time.Location
	Calendar  generic.HolidayCalendar

	// Span, when set, replaces the observed span for gap filling.
	Span *generic.Period

	// AsOf, when set, stops gap filling after that day.
	AsOf generic.TimePoint
}

// DefaultWorkStart is 09:00.
var DefaultWorkStart = generic.ClockTime{Hour: 9}

type Result struct {
	Records []generic.AttendanceRecord
	Dropped int // weekend no-clock-in rows
}

type Reconciler struct {
	opts Options
}

func NewReconciler(opts Options) *Reconciler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Calendar == nil {
		opts.Calendar = generic.NoHolidays{}
	}
	return &Reconciler{opts: opts}
}

// Reconcile merges rows per (worker, date) and fills gaps. Only approved
// leave applications are honored. Records come back ordered by worker and
// date.
func (r *Reconciler) Reconcile(rows []Row, leaves []generic.LeaveApplication) Result {
	var res Result
	byWorker := make(map[generic.WorkerID][]Row)
	var workers []generic.WorkerID

	for _, row := range rows {
		if row.Kind == KindNoClockIn && row.Date.IsWeekend() {
			res.Dropped++
			continue
		}
		if _, ok := byWorker[row.WorkerID]; !ok {
			workers = append(workers, row.WorkerID)
		}
		byWorker[row.WorkerID] = append(byWorker[row.WorkerID], row)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })

	for _, w := range workers {
		res.Records = append(res.Records, r.reconcileWorker(w, byWorker[w], leaves)...)
	}
	return res
}

func (r *Reconciler) reconcileWorker(worker generic.WorkerID, rows []Row, leaves []generic.LeaveApplication) []generic.AttendanceRecord {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })

	merged := make(map[string]generic.AttendanceRecord)
	var observed generic.Period
	for _, row := range rows {
		observed = observed.Extend(row.Date)
		candidate := r.recordFor(row)
		key := row.Date.String()
		if current, ok := merged[key]; !ok || Outranks(candidate, current) {
			merged[key] = candidate
		}
	}

	records := make([]generic.AttendanceRecord, 0, len(merged))
	for _, rec := range merged {
		records = append(records, ApplyLeaves(rec, leaves))
	}

	span := observed
	if r.opts.Span != nil {
		span = *r.opts.Span
	}
	records = append(records, r.FillGaps(worker, records, leaves, span)...)
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records
}

func (r *Reconciler) recordFor(row Row) generic.AttendanceRecord {
	rec := generic.AttendanceRecord{
		WorkerID: row.WorkerID,
		Date:     row.Date,
		Details:  row.Details,
	}
	if row.ClockIn != nil {
		at := row.Date.At(*row.ClockIn, r.opts.Location)
		rec.ClockIn = &at
	}
	switch row.Kind {
	case KindLeave:
		rec.Classification = generic.ClassLeave
	case KindClockIn:
		rec.IsLate = row.ClockIn.After(r.opts.WorkStart)
		rec.Classification = generic.ClassNormal
		if rec.IsLate {
			rec.Classification = generic.ClassLate
		}
	default:
		rec.Classification = generic.ClassNoClockIn
	}
	return rec
}

// FillGaps returns synthesized records for business days in span that have
// no record. Nothing is synthesized for a worker without records.
func (r *Reconciler) FillGaps(worker generic.WorkerID, existing []generic.AttendanceRecord, leaves []generic.LeaveApplication, span generic.Period) []generic.AttendanceRecord {
	if len(existing) == 0 || span.IsZero() {
		return nil
	}
	if !r.opts.AsOf.IsZero() {
		var ok bool
		if span, ok = span.TruncateTo(r.opts.AsOf); !ok {
			return nil
		}
	}

	have := make(map[string]bool, len(existing))
	for _, rec := range existing {
		have[rec.Date.String()] = true
	}

	var out []generic.AttendanceRecord
	for _, day := range span.Days() {
		if have[day.String()] || !day.IsBusinessDay(r.opts.Calendar) {
			continue
		}
		rec := generic.AttendanceRecord{
			WorkerID:       worker,
			Date:           day,
			Classification: generic.ClassNoClockIn,
			Synthesized:    true,
		}
		out = append(out, ApplyLeaves(rec, leaves))
	}
	return out
}

// =============================================================================
// PRECEDENCE
// =============================================================================

func rank(rec generic.AttendanceRecord) int {
	switch rec.Classification {
	case generic.ClassLeave:
		return 3
	case generic.ClassNormal, generic.ClassLate:
		return 2
	default:
		return 1
	}
}

// Outranks reports whether candidate should replace current for the same
// day. Equal precedence never replaces, except an earlier clock-in.
func Outranks(candidate, current generic.AttendanceRecord) bool {
	rc, ru := rank(candidate), rank(current)
	if rc != ru {
		return rc > ru
	}
	if candidate.ClockIn != nil && current.ClockIn != nil && rc == 2 {
		return candidate.ClockIn.Before(*current.ClockIn)
	}
	return false
}

// ApplyLeaves turns a no-clock-in record into leave when an approved
// application covers its day. Other records are returned unchanged.
func ApplyLeaves(rec generic.AttendanceRecord, leaves []generic.LeaveApplication) generic.AttendanceRecord {
	if rec.Classification != generic.ClassNoClockIn {
		return rec
	}
	for _, la := range leaves {
		if la.Covers(rec.WorkerID, rec.Date) {
			rec.Classification = generic.ClassLeave
			rec.Details = "approved leave"
			if la.Kind != "" {
				rec.Details = "approved leave: " + la.Kind
			}
			return rec
		}
	}
	return rec
}
