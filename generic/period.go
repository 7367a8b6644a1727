package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Inclusive day range used for scoring windows and attendance spans
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - Scoring month January 2026: Jan 1 - Jan 31
//   - Observed attendance span: first row date - last row date
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// MonthPeriod returns the calendar month containing day.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// ParseMonth parses "YYYY-MM" into its calendar month period.
func ParseMonth(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

// Contains returns true if the day is within [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// TruncateTo clips the end of the period to asOf. The second result is false
// when the whole period lies after asOf.
func (p Period) TruncateTo(asOf TimePoint) (Period, bool) {
	if asOf.Before(p.Start) {
		return Period{}, false
	}
	if asOf.Before(p.End) {
		return Period{Start: p.Start, End: asOf}, true
	}
	return p, true
}

// Extend grows the period so it covers day.
func (p Period) Extend(day TimePoint) Period {
	if p.Start.IsZero() || day.Before(p.Start) {
		p.Start = day
	}
	if p.End.IsZero() || day.After(p.End) {
		p.End = day
	}
	return p
}

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
