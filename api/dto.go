/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Quantities, rates and scores are rendered as JSON numbers with at most
  two decimals (see num). Dates are "2006-01-02".

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/crew-engine/accumulation"
	"github.com/warp/crew-engine/attendance"
	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/scoring"
)

// num renders a decimal as a JSON number.
func num(d decimal.Decimal) json.Number { return json.Number(d.String()) }

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateWorkerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// SCHEDULES & ACCUMULATION
// =============================================================================

// SaveScheduleRequest carries one day's schedule in its authored shape.
type SaveScheduleRequest struct {
	ID        string                `json:"id,omitempty"`
	Date      string                `json:"date"`
	WorkItems []generic.RawWorkItem `json:"workItems"`
}

type ScheduleDTO struct {
	ID        string                `json:"id"`
	Date      string                `json:"date"`
	WorkItems []generic.RawWorkItem `json:"workItems"`
}

func toScheduleDTO(s generic.Schedule) ScheduleDTO {
	items := s.WorkItems
	if items == nil {
		items = []generic.RawWorkItem{}
	}
	return ScheduleDTO{ID: string(s.ID), Date: s.Date.String(), WorkItems: items}
}

type ApplicationDTO struct {
	LeaderboardID string      `json:"leaderboard_id"`
	ItemKey       string      `json:"item_key"`
	Contributor   string      `json:"contributor"`
	Quantity      json.Number `json:"quantity"`
}

type SkipDTO struct {
	ItemKey     string `json:"item_key"`
	Contributor string `json:"contributor,omitempty"`
	Reason      string `json:"reason"`
}

// SaveScheduleResponse reports the stored schedule and what accumulated.
type SaveScheduleResponse struct {
	Schedule     ScheduleDTO      `json:"schedule"`
	CutoffPassed bool             `json:"cutoff_passed"`
	Applied      []ApplicationDTO `json:"applied"`
	Skipped      []SkipDTO        `json:"skipped"`
	Error        string           `json:"error,omitempty"`
}

func toSaveScheduleResponse(res *accumulation.Result) SaveScheduleResponse {
	resp := SaveScheduleResponse{
		Schedule:     toScheduleDTO(res.Schedule),
		CutoffPassed: res.CutoffPassed,
		Applied:      make([]ApplicationDTO, 0, len(res.Applied)),
		Skipped:      make([]SkipDTO, 0, len(res.Skipped)),
	}
	for _, a := range res.Applied {
		resp.Applied = append(resp.Applied, ApplicationDTO{
			LeaderboardID: string(a.LeaderboardID),
			ItemKey:       a.ItemKey,
			Contributor:   a.Contributor,
			Quantity:      num(a.Quantity),
		})
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, SkipDTO{ItemKey: s.ItemKey, Contributor: s.Contributor, Reason: string(s.Reason)})
	}
	return resp
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

type LeaderboardDTO struct {
	ID          string  `json:"id"`
	WorkContent string  `json:"work_content"`
	Title       string  `json:"title,omitempty"`
	Name        string  `json:"name,omitempty"`
	ResetAt     *string `json:"reset_at,omitempty"`
}

type CreateLeaderboardRequest struct {
	ID          string `json:"id,omitempty"`
	WorkContent string `json:"work_content"`
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
}

func toLeaderboardDTO(lb generic.Leaderboard) LeaderboardDTO {
	dto := LeaderboardDTO{ID: string(lb.ID), WorkContent: lb.WorkContent, Title: lb.Title, Name: lb.Name}
	if lb.ResetAt != nil {
		s := lb.ResetAt.UTC().Format(time.RFC3339)
		dto.ResetAt = &s
	}
	return dto
}

type RankingDTO struct {
	Rank         int         `json:"rank"`
	Name         string      `json:"name"`
	Quantity     json.Number `json:"quantity"`
	WeekQuantity json.Number `json:"week_quantity"`
}

type RankingsResponse struct {
	Leaderboard LeaderboardDTO `json:"leaderboard"`
	Rankings    []RankingDTO   `json:"rankings"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type ImportAttendanceRequest struct {
	Rows []attendance.RawRow `json:"rows"`
}

type AttendanceDTO struct {
	WorkerID       string  `json:"worker_id"`
	Date           string  `json:"date"`
	ClockIn        *string `json:"clock_in,omitempty"`
	IsLate         bool    `json:"is_late"`
	Classification string  `json:"classification"`
	Details        string  `json:"details,omitempty"`
	Synthesized    bool    `json:"synthesized"`
}

func toAttendanceDTO(rec generic.AttendanceRecord, loc *time.Location) AttendanceDTO {
	dto := AttendanceDTO{
		WorkerID:       string(rec.WorkerID),
		Date:           rec.Date.String(),
		IsLate:         rec.IsLate,
		Classification: string(rec.Classification),
		Details:        rec.Details,
		Synthesized:    rec.Synthesized,
	}
	if rec.ClockIn != nil {
		s := rec.ClockIn.In(loc).Format("15:04:05")
		dto.ClockIn = &s
	}
	return dto
}

type RowDiagnosticDTO struct {
	Row      int    `json:"row"`
	WorkerID string `json:"worker_id,omitempty"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}

type ImportAttendanceResponse struct {
	Written     int                `json:"written"`
	Unchanged   int                `json:"unchanged"`
	Dropped     int                `json:"dropped"`
	Diagnostics []RowDiagnosticDTO `json:"diagnostics"`
}

// =============================================================================
// SCORES
// =============================================================================

type ItemLineDTO struct {
	Date       string      `json:"date"`
	ScheduleID string      `json:"schedule_id"`
	ItemKey    string      `json:"item_key"`
	Content    string      `json:"content"`
	Target     json.Number `json:"target"`
	Actual     json.Number `json:"actual"`
	Rate       json.Number `json:"completion_rate"`
	Delta      json.Number `json:"delta"`
}

type AdjustmentDTO struct {
	ID        string      `json:"id"`
	WorkerID  string      `json:"worker_id"`
	Date      string      `json:"date"`
	Delta     json.Number `json:"delta"`
	Note      string      `json:"note,omitempty"`
	Evaluator string      `json:"evaluator,omitempty"`
	CreatedAt string      `json:"created_at"`
}

func toAdjustmentDTO(a generic.PerformanceAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:        string(a.ID),
		WorkerID:  string(a.WorkerID),
		Date:      a.Date.String(),
		Delta:     num(a.Delta),
		Note:      a.Note,
		Evaluator: a.Evaluator,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateAdjustmentRequest struct {
	WorkerID  string         `json:"worker_id"`
	Date      string         `json:"date"`
	Delta     generic.Number `json:"delta"`
	Note      string         `json:"note"`
	Evaluator string         `json:"evaluator"`
}

type ScoreDTO struct {
	WorkerID                 string          `json:"worker_id"`
	Name                     string          `json:"name"`
	Start                    string          `json:"start"`
	End                      string          `json:"end"`
	AsOf                     string          `json:"as_of"`
	Base                     json.Number     `json:"base"`
	AdjustmentTotal          json.Number     `json:"adjustment_total"`
	CompletionRateAdjustment json.Number     `json:"completion_rate_adjustment"`
	AverageCompletionRate    json.Number     `json:"average_completion_rate"`
	LateCount                int             `json:"late_count"`
	NoClockInCount           int             `json:"no_clock_in_count"`
	LatePenalty              json.Number     `json:"late_penalty"`
	NoClockInPenalty         json.Number     `json:"no_clock_in_penalty"`
	Score                    json.Number     `json:"score"`
	LatePolicy               string          `json:"late_policy"`
	NoClockInPolicy          string          `json:"no_clock_in_policy"`
	Items                    []ItemLineDTO   `json:"items"`
	Adjustments              []AdjustmentDTO `json:"adjustments"`
}

func toScoreDTO(b *scoring.Breakdown) ScoreDTO {
	dto := ScoreDTO{
		WorkerID:                 string(b.WorkerID),
		Name:                     b.Name,
		Start:                    b.Period.Start.String(),
		End:                      b.Period.End.String(),
		AsOf:                     b.AsOf.String(),
		Base:                     num(b.Base),
		AdjustmentTotal:          num(b.AdjustmentTotal),
		CompletionRateAdjustment: num(b.CompletionRateAdjustment),
		AverageCompletionRate:    num(b.AverageCompletionRate),
		LateCount:                b.LateCount,
		NoClockInCount:           b.NoClockInCount,
		LatePenalty:              num(b.LatePenalty),
		NoClockInPenalty:         num(b.NoClockInPenalty),
		Score:                    num(b.Score),
		LatePolicy:               b.LatePolicy,
		NoClockInPolicy:          b.NoClockInPolicy,
		Items:                    make([]ItemLineDTO, 0, len(b.Items)),
		Adjustments:              make([]AdjustmentDTO, 0, len(b.Adjustments)),
	}
	for _, l := range b.Items {
		dto.Items = append(dto.Items, ItemLineDTO{
			Date:       l.Date.String(),
			ScheduleID: string(l.ScheduleID),
			ItemKey:    l.ItemKey,
			Content:    l.Content,
			Target:     num(l.Target),
			Actual:     num(l.Actual),
			Rate:       num(l.Rate),
			Delta:      num(l.Delta),
		})
	}
	for _, a := range b.Adjustments {
		dto.Adjustments = append(dto.Adjustments, toAdjustmentDTO(a))
	}
	return dto
}

type DayScoreDTO struct {
	Date            string      `json:"date"`
	Score           json.Number `json:"score"`
	Delta           json.Number `json:"delta"`
	AdjustmentDelta json.Number `json:"adjustment_delta"`
	CompletionDelta json.Number `json:"completion_delta"`
	PenaltyDelta    json.Number `json:"penalty_delta"`
	Late            bool        `json:"late"`
	NoClockIn       bool        `json:"no_clock_in"`
}

func toDayScoreDTOs(days []scoring.DayScore) []DayScoreDTO {
	out := make([]DayScoreDTO, 0, len(days))
	for _, d := range days {
		out = append(out, DayScoreDTO{
			Date:            d.Date.String(),
			Score:           num(d.Cumulative),
			Delta:           num(d.Delta),
			AdjustmentDelta: num(d.AdjustmentDelta),
			CompletionDelta: num(d.CompletionDelta),
			PenaltyDelta:    num(d.PenaltyDelta),
			Late:            d.Late,
			NoClockIn:       d.NoClockIn,
		})
	}
	return out
}

// =============================================================================
// LEAVE APPLICATIONS
// =============================================================================

type LeaveApplicationDTO struct {
	ID       string `json:"id"`
	WorkerID string `json:"worker_id"`
	Kind     string `json:"kind"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func toLeaveDTO(la generic.LeaveApplication) LeaveApplicationDTO {
	return LeaveApplicationDTO{
		ID:       string(la.ID),
		WorkerID: string(la.WorkerID),
		Kind:     la.Kind,
		Start:    la.Start.String(),
		End:      la.End.String(),
		Status:   string(la.Status),
		Reason:   la.Reason,
	}
}

type CreateLeaveRequest struct {
	WorkerID string `json:"worker_id"`
	Kind     string `json:"kind"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Reason   string `json:"reason"`
}

// LeaveDecisionResponse reports how many stored records were reclassified.
type LeaveDecisionResponse struct {
	Leave        LeaveApplicationDTO `json:"leave"`
	Reclassified int                 `json:"reclassified"`
}

// =============================================================================
// RULES & ERRORS
// =============================================================================

type RulesResponse struct {
	Rules       json.RawMessage `json:"rules"`
	Editable    bool            `json:"editable"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
