package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar-day abstraction (schedules, attendance, scores are per day)
// =============================================================================

// TimePoint is a calendar day. The wall clock never leaks into a TimePoint:
// callers convert an instant with DayOf using the location they care about.
type TimePoint struct {
	Time time.Time
}

// dateLayouts are accepted by ParseDate, most specific first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006.01.02",
	time.RFC3339,
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a calendar day in any of the accepted layouts.
// RFC3339 timestamps are reduced to the day in their own offset.
func ParseDate(s string) (TimePoint, error) {
	return ParseDateIn(s, nil)
}

// ParseDateIn is ParseDate with RFC3339 timestamps converted to loc before
// the day is taken, so "2026-01-31T16:00:00Z" in UTC+8 is 2026-02-01.
// Plain dates are never shifted. A nil loc keeps the timestamp's offset.
func ParseDateIn(s string, loc *time.Location) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimePoint{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 && loc != nil {
			t = t.In(loc)
		}
		return DayOf(t), nil
	}
	return TimePoint{}, fmt.Errorf("unrecognized date %q", s)
}

// MustParseDate is ParseDate for literals in tests and presets.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return DayOf(tp.normalize().AddDate(0, 0, n)) }
func (tp TimePoint) AddMonths(n int) TimePoint { return DayOf(tp.normalize().AddDate(0, n, 0)) }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
func (tp TimePoint) IsWorkday() bool { return !tp.IsWeekend() }
func (tp TimePoint) IsZero() bool    { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.normalize().Format("2006-01-02")
}

// At combines the day with a clock time in loc.
func (tp TimePoint) At(clock ClockTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(tp.Year(), tp.Month(), tp.Day(), clock.Hour, clock.Minute, clock.Second, 0, loc)
}

// =============================================================================
// CLOCK TIME - Time of day, compared only within the same day
// =============================================================================

// ClockTime is a time of day without a date.
type ClockTime struct {
	Hour, Minute, Second int
}

var clockLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3:04PM", "3:04:05 PM"}

// ParseClock parses "HH:MM", "HH:MM:SS" or a 12-hour clock.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("unrecognized time %q", s)
}

// Seconds returns the offset from midnight.
func (c ClockTime) Seconds() int { return c.Hour*3600 + c.Minute*60 + c.Second }

// After reports whether c is strictly later than other on the same day.
func (c ClockTime) After(other ClockTime) bool { return c.Seconds() > other.Seconds() }

// Before reports whether c is strictly earlier than other on the same day.
func (c ClockTime) Before(other ClockTime) bool { return c.Seconds() < other.Seconds() }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// =============================================================================
// HOLIDAY CALENDAR - Company-specific non-working days
// =============================================================================

// HolidayCalendar reports days that are not business days even though they
// fall Monday to Friday.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// NoHolidays is the calendar used when none is configured.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(TimePoint) bool { return false }

// HolidaySet is a fixed set of holiday dates.
type HolidaySet map[string]string

// NewHolidaySet builds a calendar from dates; names are informational.
func NewHolidaySet(days ...TimePoint) HolidaySet {
	hs := make(HolidaySet, len(days))
	for _, d := range days {
		hs[d.String()] = ""
	}
	return hs
}

func (hs HolidaySet) IsHoliday(date TimePoint) bool {
	_, ok := hs[date.String()]
	return ok
}

// IsBusinessDay checks Monday-Friday and the holiday calendar.
func (tp TimePoint) IsBusinessDay(calendar HolidayCalendar) bool {
	if tp.IsWeekend() {
		return false
	}
	if calendar != nil && calendar.IsHoliday(tp) {
		return false
	}
	return true
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
func StartOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month, 1)
}
func EndOfMonth(year int, month time.Month) TimePoint {
	return DayOf(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}
