package attendance

import (
	"strings"

	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// RAW ROWS - Output of the punch-clock file import
// =============================================================================

// RawRow is one normalized row from an imported punch-clock file. Column
// sniffing happens upstream; fields here are still unparsed text.
type RawRow struct {
	WorkerID generic.WorkerID `json:"workerId"`
	Date     string           `json:"date"`
	ClockIn  string           `json:"clockIn,omitempty"`
	Status   string           `json:"status,omitempty"`
	Details  string           `json:"details,omitempty"`
}

type RowKind int

const (
	KindNoClockIn RowKind = iota
	KindClockIn
	KindLeave
)

func (k RowKind) String() string {
	switch k {
	case KindLeave:
		return "leave"
	case KindClockIn:
		return "clock-in"
	default:
		return "no-clock-in"
	}
}

// Row is a parsed raw row. Index is the position in the input batch and
// breaks ties between rows of equal precedence.
type Row struct {
	Index    int
	WorkerID generic.WorkerID
	Date     generic.TimePoint
	Kind     RowKind
	ClockIn  *generic.ClockTime
	Details  string
}

// leaveMarkers identify leave rows by their status text.
var leaveMarkers = []string{"leave", "假"}

func isLeaveStatus(status string) bool {
	s := strings.ToLower(status)
	for _, m := range leaveMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ParseRows parses every row it can. Rows with a missing worker, an
// unparseable date or an unparseable clock-in are dropped and reported.
func ParseRows(raw []RawRow) ([]Row, []*generic.RowError) {
	var rows []Row
	var diags []*generic.RowError

	for i, r := range raw {
		worker := generic.WorkerID(strings.TrimSpace(string(r.WorkerID)))
		if worker == "" {
			diags = append(diags, &generic.RowError{Row: i, Field: "workerId", Reason: "missing worker"})
			continue
		}
		date, err := generic.ParseDate(r.Date)
		if err != nil {
			diags = append(diags, &generic.RowError{Row: i, WorkerID: worker, Field: "date", Value: r.Date, Reason: err.Error()})
			continue
		}

		row := Row{Index: i, WorkerID: worker, Date: date, Kind: KindNoClockIn, Details: strings.TrimSpace(r.Details)}
		if clock := strings.TrimSpace(r.ClockIn); clock != "" {
			ct, err := generic.ParseClock(clock)
			if err != nil {
				diags = append(diags, &generic.RowError{Row: i, WorkerID: worker, Field: "clockIn", Value: r.ClockIn, Reason: err.Error()})
				continue
			}
			row.ClockIn = &ct
			row.Kind = KindClockIn
		}
		if isLeaveStatus(r.Status) {
			row.Kind = KindLeave
			if row.Details == "" {
				row.Details = strings.TrimSpace(r.Status)
			}
		}
		rows = append(rows, row)
	}
	return rows, diags
}
