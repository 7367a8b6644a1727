package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crew-engine/attendance"
	"github.com/warp/crew-engine/generic"
)

// Week of 2026-01-05 (Monday) to 2026-01-11 (Sunday).

func newTestReconciler(opts ...func(*attendance.Options)) *attendance.Reconciler {
	o := attendance.Options{WorkStart: attendance.DefaultWorkStart}
	for _, fn := range opts {
		fn(&o)
	}
	return attendance.NewReconciler(o)
}

func parse(t *testing.T, raw ...attendance.RawRow) []attendance.Row {
	t.Helper()
	rows, diags := attendance.ParseRows(raw)
	require.Empty(t, diags)
	return rows
}

func byDate(records []generic.AttendanceRecord) map[string]generic.AttendanceRecord {
	out := make(map[string]generic.AttendanceRecord, len(records))
	for _, r := range records {
		out[r.Date.String()] = r
	}
	return out
}

func approvedLeave(worker generic.WorkerID, start, end string) generic.LeaveApplication {
	return generic.LeaveApplication{
		ID: "la-1", WorkerID: worker, Kind: "annual",
		Start: generic.MustParseDate(start), End: generic.MustParseDate(end),
		Status: generic.LeaveApproved,
	}
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseRows_BadRowsProduceDiagnostics(t *testing.T) {
	rows, diags := attendance.ParseRows([]attendance.RawRow{
		{WorkerID: "w1", Date: "2026/01/05", ClockIn: "08:55"},
		{WorkerID: "w1", Date: "yesterday", ClockIn: "08:55"},
		{WorkerID: "w1", Date: "2026-01-06", ClockIn: "25:99"},
		{WorkerID: "", Date: "2026-01-06"},
		{WorkerID: "w1", Date: "2026-01-07", Status: "特休假"},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, attendance.KindClockIn, rows[0].Kind)
	assert.Equal(t, attendance.KindLeave, rows[1].Kind)

	require.Len(t, diags, 3)
	assert.Equal(t, "date", diags[0].Field)
	assert.Equal(t, 1, diags[0].Row)
	assert.Equal(t, "clockIn", diags[1].Field)
	assert.Equal(t, "workerId", diags[2].Field)
	assert.ErrorIs(t, diags[0], generic.ErrInvalidRow)
}

// =============================================================================
// MERGE PRECEDENCE
// =============================================================================

func TestReconcile_LeaveBeatsClockInBeatsMarker(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", Status: "no-clock-in"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "09:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-06", ClockIn: "08:00"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-06", Status: "leave"},
	)

	res := newTestReconciler().Reconcile(rows, nil)

	got := byDate(res.Records)
	assert.Equal(t, generic.ClassLate, got["2026-01-05"].Classification)
	assert.Equal(t, generic.ClassLeave, got["2026-01-06"].Classification)
	assert.Len(t, res.Records, 2, "one record per day")
}

func TestReconcile_EarliestClockInWins(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "09:15"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:45"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "10:00"},
	)

	res := newTestReconciler().Reconcile(rows, nil)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, generic.ClassNormal, rec.Classification)
	require.NotNil(t, rec.ClockIn)
	assert.Equal(t, 8, rec.ClockIn.Hour())
	assert.Equal(t, 45, rec.ClockIn.Minute())
}

func TestReconcile_LatenessIsStrict(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "09:00:00"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-06", ClockIn: "09:00:01"},
	)

	got := byDate(newTestReconciler().Reconcile(rows, nil).Records)

	assert.False(t, got["2026-01-05"].IsLate, "exactly on time is not late")
	assert.True(t, got["2026-01-06"].IsLate)
}

// =============================================================================
// GAP FILLING
// =============================================================================

func TestReconcile_WeekendNeverSynthesized(t *testing.T) {
	// GIVEN: rows on Friday and the following Monday only
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-09", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-12", ClockIn: "08:30"},
	)

	got := byDate(newTestReconciler().Reconcile(rows, nil).Records)

	assert.NotContains(t, got, "2026-01-10", "Saturday")
	assert.NotContains(t, got, "2026-01-11", "Sunday")
	assert.Len(t, got, 2)
}

func TestReconcile_WeekendNoClockInRowDropped(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-09", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-10", Status: "no-clock-in"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-11", ClockIn: "10:00"},
	)

	res := newTestReconciler().Reconcile(rows, nil)
	got := byDate(res.Records)

	assert.Equal(t, 1, res.Dropped)
	assert.NotContains(t, got, "2026-01-10")
	assert.Contains(t, got, "2026-01-11", "weekend clock-in is kept")
}

func TestReconcile_MissingBusinessDaySynthesizedAsNoClockIn(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-07", ClockIn: "08:30"},
	)

	got := byDate(newTestReconciler().Reconcile(rows, nil).Records)

	require.Contains(t, got, "2026-01-06")
	assert.Equal(t, generic.ClassNoClockIn, got["2026-01-06"].Classification)
	assert.True(t, got["2026-01-06"].Synthesized)
}

func TestReconcile_ApprovedLeaveOverridesNoClockIn(t *testing.T) {
	// GIVEN: Tuesday has no row but is covered by approved leave
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-07", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-08", Status: "no-clock-in"},
	)
	leaves := []generic.LeaveApplication{approvedLeave("w1", "2026-01-06", "2026-01-08")}

	got := byDate(newTestReconciler().Reconcile(rows, leaves).Records)

	// THEN: leave, not no-clock-in, for both the gap and the explicit marker
	assert.Equal(t, generic.ClassLeave, got["2026-01-06"].Classification)
	assert.Equal(t, generic.ClassLeave, got["2026-01-08"].Classification)
}

func TestReconcile_PendingLeaveIsIgnored(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-07", ClockIn: "08:30"},
	)
	leave := approvedLeave("w1", "2026-01-06", "2026-01-06")
	leave.Status = generic.LeavePending

	got := byDate(newTestReconciler().Reconcile(rows, []generic.LeaveApplication{leave}).Records)

	assert.Equal(t, generic.ClassNoClockIn, got["2026-01-06"].Classification)
}

func TestReconcile_HolidayNotSynthesized(t *testing.T) {
	rows := parse(t,
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:30"},
		attendance.RawRow{WorkerID: "w1", Date: "2026-01-07", ClockIn: "08:30"},
	)
	r := newTestReconciler(func(o *attendance.Options) {
		o.Calendar = generic.NewHolidaySet(generic.MustParseDate("2026-01-06"))
	})

	got := byDate(r.Reconcile(rows, nil).Records)

	assert.NotContains(t, got, "2026-01-06")
}

func TestReconcile_ExplicitSpanClippedToAsOf(t *testing.T) {
	rows := parse(t, attendance.RawRow{WorkerID: "w1", Date: "2026-01-05", ClockIn: "08:30"})
	span := generic.Period{Start: generic.MustParseDate("2026-01-05"), End: generic.MustParseDate("2026-01-09")}
	r := newTestReconciler(func(o *attendance.Options) {
		o.Span = &span
		o.AsOf = generic.MustParseDate("2026-01-07")
	})

	got := byDate(r.Reconcile(rows, nil).Records)

	assert.Contains(t, got, "2026-01-06")
	assert.Contains(t, got, "2026-01-07")
	assert.NotContains(t, got, "2026-01-08", "after asOf")
}

func TestReconcile_WorkerWithoutRowsGetsNothing(t *testing.T) {
	span := generic.MonthPeriod(2026, time.January)
	r := newTestReconciler(func(o *attendance.Options) { o.Span = &span })

	res := r.Reconcile(nil, nil)

	assert.Empty(t, res.Records)
}
