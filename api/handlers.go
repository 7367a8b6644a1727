/*
handlers.go - HTTP API handlers for the crew performance engine

PURPOSE:
  Exposes accumulation, attendance and scoring over REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engines.

ENDPOINTS:
  Schedules:
    POST   /api/schedules                         Save a schedule and accumulate it
    GET    /api/schedules?start&end               Schedules in a date range

  Leaderboards:
    GET    /api/leaderboards                      List leaderboards
    POST   /api/leaderboards                      Create or update a leaderboard
    GET    /api/leaderboards/{id}/rankings        Current rankings
    POST   /api/leaderboards/{id}/reset           Start a new weekly cycle

  Attendance:
    POST   /api/attendance/import                 Reconcile and store raw rows
    GET    /api/workers/{id}/attendance?start&end Canonical records

  Scores:
    GET    /api/workers/{id}/score?month=YYYY-MM        Monthly breakdown
    GET    /api/workers/{id}/score/daily?month=YYYY-MM  Daily cumulative scores

  Adjustments:
    POST   /api/adjustments                       Append a correction
    GET    /api/workers/{id}/adjustments?month    List corrections
    DELETE /api/adjustments/{id}                  Remove a correction

  Rules:
    GET    /api/rules                             Current rule tables
    PUT    /api/rules                             Replace the stored rule document

  Workers and leave:
    GET/POST /api/workers
    GET/POST /api/leave-applications
    POST     /api/leave-applications/{id}/approve|reject

TIME:
  "Today" comes from the injected Clock in the configured location. It is
  the accumulation cutoff and the default asOf for scores.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Rules are file-managed and cannot be edited here
  - 503: Ranking save failed; the request can be retried
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Identity is supplied by the caller.

SEE ALSO:
  - dto.go: Request/response data structures
  - sweeper.go: Nightly attendance gap filling
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/crew-engine/accumulation"
	"github.com/warp/crew-engine/attendance"
	"github.com/warp/crew-engine/factory"
	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/scoring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values pick sensible defaults.
type Options struct {
	// Rules overrides the stored rule document, e.g. a file-backed source.
	// When set, PUT /api/rules is refused.
	Rules generic.RuleSource

	// Matcher picks the leaderboard for a work item. Nil uses
	// accumulation.DefaultMatcher.
	Matcher accumulation.Matcher

	WorkStart generic.ClockTime
	Location  *time.Location
	Calendar  generic.HolidayCalendar
	Clock     Clock
	Logger    *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       generic.Store
	Rules       generic.RuleSource
	Accumulator *accumulation.Engine
	Scorer      *scoring.Engine

	reconcilerOpts attendance.Options
	editableRules  bool
	clock          Clock
	loc            *time.Location
	logger         *zap.Logger
}

// NewHandler wires the engines against one store.
func NewHandler(store generic.Store, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.WorkStart == (generic.ClockTime{}) {
		opts.WorkStart = attendance.DefaultWorkStart
	}

	h := &Handler{
		Store:  store,
		Rules:  opts.Rules,
		clock:  opts.Clock,
		loc:    opts.Location,
		logger: opts.Logger,
		reconcilerOpts: attendance.Options{
			WorkStart: opts.WorkStart,
			Location:  opts.Location,
			Calendar:  opts.Calendar,
		},
	}
	if h.Rules == nil {
		h.Rules = &factory.StoredRuleSource{Store: store, Logger: opts.Logger.Named("rules")}
		h.editableRules = true
	}
	accOpts := []accumulation.Option{
		accumulation.WithLogger(opts.Logger.Named("accumulation")),
		accumulation.WithLocation(opts.Location),
	}
	if opts.Matcher != nil {
		accOpts = append(accOpts, accumulation.WithMatcher(opts.Matcher))
	}
	h.Accumulator = accumulation.NewEngine(store, accOpts...)
	h.Scorer = scoring.NewEngine(scoring.Sources{
		Schedules:   store,
		Attendance:  store,
		Adjustments: store,
		Rules:       h.Rules,
		Workers:     store,
	}, scoring.WithLogger(opts.Logger.Named("scoring")))
	return h
}

// today is the calendar day of the clock in the configured location.
func (h *Handler) today() generic.TimePoint {
	return generic.DayOf(h.clock.Now().In(h.loc))
}

// reconciler builds a reconciler that stops gap filling at today.
func (h *Handler) reconciler() *attendance.Reconciler {
	opts := h.reconcilerOpts
	opts.AsOf = h.today()
	return h.reconcilerWith(opts)
}

func (h *Handler) reconcilerWith(opts attendance.Options) *attendance.Reconciler {
	return attendance.NewReconciler(opts)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// SaveSchedule stores a schedule and accumulates it as of today. The stored
// copy carries the refreshed lastAccumulatedBy map.
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	var req SaveScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	schedule := generic.Schedule{ID: generic.ScheduleID(req.ID), Date: date, WorkItems: req.WorkItems}

	result, accErr := h.Accumulator.Accumulate(r.Context(), schedule, h.today())
	if err := h.Store.SaveSchedule(r.Context(), result.Schedule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save schedule", errors.Join(accErr, err))
		return
	}

	resp := toSaveScheduleResponse(result)
	if accErr != nil {
		resp.Error = accErr.Error()
		status := http.StatusInternalServerError
		if generic.IsRetryable(accErr) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSchedules returns schedules dated in [start, end].
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	period, err := h.rangeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	schedules, err := h.Store.LoadSchedulesInRange(r.Context(), period.Start, period.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}
	dtos := make([]ScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, toScheduleDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEADERBOARD HANDLERS
// =============================================================================

func (h *Handler) ListLeaderboards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.Store.LoadLeaderboards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list leaderboards", err)
		return
	}
	dtos := make([]LeaderboardDTO, 0, len(boards))
	for _, lb := range boards {
		dtos = append(dtos, toLeaderboardDTO(lb))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLeaderboard creates a leaderboard, or updates its matching fields.
// An existing reset stamp is kept.
func (h *Handler) CreateLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaderboardRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.WorkContent) == "" && strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "work_content, title or name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	lb := generic.Leaderboard{
		ID:          generic.LeaderboardID(req.ID),
		WorkContent: strings.TrimSpace(req.WorkContent),
		Title:       strings.TrimSpace(req.Title),
		Name:        strings.TrimSpace(req.Name),
	}
	existing, err := h.Store.LoadLeaderboard(r.Context(), lb.ID)
	status := http.StatusCreated
	switch {
	case err == nil:
		lb.ResetAt = existing.ResetAt
		status = http.StatusOK
	case !generic.IsNotFound(err):
		writeError(w, http.StatusInternalServerError, "Failed to load leaderboard", err)
		return
	}
	if err := h.Store.SaveLeaderboard(r.Context(), lb); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save leaderboard", err)
		return
	}
	writeJSON(w, status, toLeaderboardDTO(lb))
}

func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	id := generic.LeaderboardID(chi.URLParam(r, "id"))
	lb, err := h.Store.LoadLeaderboard(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to load leaderboard", err)
		return
	}
	rankings, err := h.Store.LoadRankings(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rankings", err)
		return
	}
	resp := RankingsResponse{Leaderboard: toLeaderboardDTO(lb), Rankings: make([]RankingDTO, 0, len(rankings))}
	for _, rk := range rankings {
		resp.Rankings = append(resp.Rankings, RankingDTO{
			Rank:         rk.Rank,
			Name:         rk.Name,
			Quantity:     num(rk.Quantity),
			WeekQuantity: num(rk.WeekQuantity),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetLeaderboard starts a weekly cycle: WeekQuantity is zeroed and fed
// by accumulation from now on.
func (h *Handler) ResetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := generic.LeaderboardID(chi.URLParam(r, "id"))
	if err := h.Store.ResetLeaderboard(r.Context(), id, h.clock.Now()); err != nil {
		writeStoreError(w, "Failed to reset leaderboard", err)
		return
	}
	lb, err := h.Store.LoadLeaderboard(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to load leaderboard", err)
		return
	}
	h.logger.Info("leaderboard reset", zap.String("leaderboard", string(id)))
	writeJSON(w, http.StatusOK, toLeaderboardDTO(lb))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

func (h *Handler) ImportAttendance(w http.ResponseWriter, r *http.Request) {
	var req ImportAttendanceRequest
	if !decode(w, r, &req) {
		return
	}
	importer := attendance.NewImporter(h.Store, h.Store, h.reconciler(), h.logger.Named("attendance"))
	res, err := importer.Import(r.Context(), req.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import attendance", err)
		return
	}
	resp := ImportAttendanceResponse{
		Written:     len(res.Records),
		Unchanged:   res.Unchanged,
		Dropped:     res.Dropped,
		Diagnostics: make([]RowDiagnosticDTO, 0, len(res.Diagnostics)),
	}
	for _, d := range res.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, RowDiagnosticDTO{
			Row: d.Row, WorkerID: string(d.WorkerID), Field: d.Field, Value: d.Value, Reason: d.Reason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	worker := generic.WorkerID(chi.URLParam(r, "id"))
	period, err := h.rangeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	records, err := h.Store.LoadAttendance(r.Context(), worker, period.Start, period.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}
	dtos := make([]AttendanceDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toAttendanceDTO(rec, h.loc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCORE HANDLERS
// =============================================================================

func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	worker := generic.WorkerID(chi.URLParam(r, "id"))
	period, asOf, err := h.scoreParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	b, err := h.Scorer.Score(r.Context(), worker, period, asOf)
	if err != nil {
		writeStoreError(w, "Failed to compute score", err)
		return
	}
	writeJSON(w, http.StatusOK, toScoreDTO(b))
}

func (h *Handler) GetDailyScores(w http.ResponseWriter, r *http.Request) {
	worker := generic.WorkerID(chi.URLParam(r, "id"))
	period, asOf, err := h.scoreParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	days, err := h.Scorer.Daily(r.Context(), worker, period, asOf)
	if err != nil {
		writeStoreError(w, "Failed to compute daily scores", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayScoreDTOs(days))
}

// scoreParams reads ?month=YYYY-MM (default: current month) and an
// optional ?as_of=YYYY-MM-DD (default: today).
func (h *Handler) scoreParams(r *http.Request) (generic.Period, generic.TimePoint, error) {
	today := h.today()
	period := generic.MonthPeriod(today.Year(), today.Month())
	if m := r.URL.Query().Get("month"); m != "" {
		p, err := generic.ParseMonth(m)
		if err != nil {
			return generic.Period{}, generic.TimePoint{}, err
		}
		period = p
	}
	asOf := today
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			return generic.Period{}, generic.TimePoint{}, err
		}
		asOf = d
	}
	return period, asOf, nil
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required", nil)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	if _, err := h.Store.LoadWorker(r.Context(), generic.WorkerID(req.WorkerID)); err != nil {
		writeStoreError(w, "Unknown worker", err)
		return
	}
	adj := generic.PerformanceAdjustment{
		ID:        generic.AdjustmentID(uuid.NewString()),
		WorkerID:  generic.WorkerID(req.WorkerID),
		Date:      date,
		Delta:     req.Delta.Decimal,
		Note:      req.Note,
		Evaluator: req.Evaluator,
		CreatedAt: h.clock.Now(),
	}
	if err := h.Store.AppendAdjustment(r.Context(), adj); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	worker := generic.WorkerID(chi.URLParam(r, "id"))
	period, _, err := h.scoreParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	adjs, err := h.Store.LoadAdjustments(r.Context(), worker, period.Start, period.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list adjustments", err)
		return
	}
	dtos := make([]AdjustmentDTO, 0, len(adjs))
	for _, a := range adjs {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id := generic.AdjustmentID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteAdjustment(r.Context(), id); err != nil {
		writeStoreError(w, "Failed to delete adjustment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.CompletionRateRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rules", err)
		return
	}
	penalty, err := h.Rules.PenaltyConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load penalty config", err)
		return
	}
	doc, err := factory.MarshalRuleSet(generic.RuleSet{CompletionRules: rules, Penalty: penalty})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode rules", err)
		return
	}
	writeJSON(w, http.StatusOK, RulesResponse{Rules: doc, Editable: h.editableRules})
}

// PutRules replaces the stored rule document. Broken entries are accepted
// and reported; they price at zero until fixed.
func (h *Handler) PutRules(w http.ResponseWriter, r *http.Request) {
	if !h.editableRules {
		writeError(w, http.StatusConflict, "Rules are managed by the rule file", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	rs, diags, err := factory.ParseRuleSet(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule document", err)
		return
	}
	if err := h.Store.SaveRuleDocument(r.Context(), body); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rules", err)
		return
	}
	doc, err := factory.MarshalRuleSet(rs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode rules", err)
		return
	}
	resp := RulesResponse{Rules: doc, Editable: true}
	for _, d := range diags {
		resp.Diagnostics = append(resp.Diagnostics, d.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.LoadWorkers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workers", err)
		return
	}
	dtos := make([]WorkerDTO, 0, len(workers))
	for _, wk := range workers {
		dtos = append(dtos, WorkerDTO{ID: string(wk.ID), Name: wk.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if err := h.Store.SaveWorker(r.Context(), generic.Worker{ID: generic.WorkerID(req.ID), Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, WorkerDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) ListLeaveApplications(w http.ResponseWriter, r *http.Request) {
	leaves, err := h.Store.LoadLeaveApplications(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list leave applications", err)
		return
	}
	status := r.URL.Query().Get("status")
	dtos := make([]LeaveApplicationDTO, 0, len(leaves))
	for _, la := range leaves {
		if status != "" && string(la.Status) != status {
			continue
		}
		dtos = append(dtos, toLeaveDTO(la))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLeaveApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required", nil)
		return
	}
	start, err := generic.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := generic.ParseDate(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}
	if _, err := generic.NewPeriod(start, end); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave period", err)
		return
	}
	la := generic.LeaveApplication{
		ID:       generic.LeaveID(uuid.NewString()),
		WorkerID: generic.WorkerID(req.WorkerID),
		Kind:     req.Kind,
		Start:    start,
		End:      end,
		Status:   generic.LeavePending,
		Reason:   req.Reason,
	}
	if err := h.Store.SaveLeaveApplication(r.Context(), la); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save leave application", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(la))
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, generic.LeaveApproved)
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, generic.LeaveRejected)
}

// decideLeave records the decision. Approval reclassifies stored
// no-clock-in records inside the leave as leave.
func (h *Handler) decideLeave(w http.ResponseWriter, r *http.Request, status generic.LeaveStatus) {
	id := generic.LeaveID(chi.URLParam(r, "id"))
	la, err := h.Store.LoadLeaveApplication(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to load leave application", err)
		return
	}
	la.Status = status
	if err := h.Store.SaveLeaveApplication(r.Context(), la); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save leave application", err)
		return
	}

	resp := LeaveDecisionResponse{Leave: toLeaveDTO(la)}
	if status == generic.LeaveApproved {
		n, err := h.reclassify(r.Context(), la)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reclassify attendance", err)
			return
		}
		resp.Reclassified = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reclassify(ctx context.Context, la generic.LeaveApplication) (int, error) {
	records, err := h.Store.LoadAttendance(ctx, la.WorkerID, la.Start, la.End)
	if err != nil {
		return 0, err
	}
	var changed []generic.AttendanceRecord
	for _, rec := range records {
		updated := attendance.ApplyLeaves(rec, []generic.LeaveApplication{la})
		if updated.Classification != rec.Classification {
			changed = append(changed, updated)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := h.Store.SaveAttendance(ctx, changed); err != nil {
		return 0, err
	}
	h.logger.Info("attendance reclassified for approved leave",
		zap.String("leave", string(la.ID)),
		zap.String("worker", string(la.WorkerID)),
		zap.Int("records", len(changed)))
	return len(changed), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// rangeParam reads ?start&end, defaulting to the current month.
func (h *Handler) rangeParam(r *http.Request) (generic.Period, error) {
	today := h.today()
	period := generic.MonthPeriod(today.Year(), today.Month())
	q := r.URL.Query()
	if s := q.Get("start"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			return generic.Period{}, err
		}
		period.Start = d
	}
	if s := q.Get("end"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			return generic.Period{}, err
		}
		period.End = d
	}
	return generic.NewPeriod(period.Start, period.End)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps engine and store errors to a status.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
