/*
handlers_test.go - HTTP tests for the crew performance API

Tests for:
- Schedule save: accumulation, idempotency, cutoff, save failures, matcher choice
- Leaderboards: rankings and weekly reset
- Attendance import and leave approval reclassification
- Scores: monthly breakdown, daily replay, adjustments
- Rules: stored document editing and the file-managed conflict
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crew-engine/accumulation"
	"github.com/warp/crew-engine/api"
	"github.com/warp/crew-engine/factory"
	"github.com/warp/crew-engine/generic"
	"github.com/warp/crew-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// today is Wednesday 2026-02-04 at 10:00 UTC.
var today = time.Date(2026, time.February, 4, 10, 0, 0, 0, time.UTC)

type testAPI struct {
	t       *testing.T
	store   *store.Memory
	handler *api.Handler
	router  http.Handler
}

func newTestAPI(t *testing.T, opts api.Options) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	if opts.Clock == nil {
		opts.Clock = api.FixedClock(today)
	}
	h := api.NewHandler(mem, opts)
	return &testAPI{t: t, store: mem, handler: h, router: api.NewRouter(h)}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertNumber(t *testing.T, want string, got json.Number) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(string(got))),
		"want %s, got %s", want, got)
}

func (a *testAPI) seedWorker(id, name string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/workers", map[string]string{"id": id, "name": name})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) seedBoard(id, content string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/leaderboards", map[string]string{"id": id, "work_content": content})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func pipeSchedule(id, date, itemID string, actual float64) api.SaveScheduleRequest {
	return api.SaveScheduleRequest{
		ID:   id,
		Date: date,
		WorkItems: []generic.RawWorkItem{{
			ID:                itemID,
			Content:           "管線A",
			ResponsiblePerson: "王小明",
			TargetQuantity:    generic.NewNumber(10),
			ActualQuantity:    generic.NewNumber(actual),
		}},
	}
}

// =============================================================================
// SCHEDULES AND LEADERBOARDS
// =============================================================================

func TestSaveSchedule_AccumulatesOnce(t *testing.T) {
	// GIVEN: a pipeline leaderboard
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")

	// WHEN: today's schedule is saved twice
	first := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))
	second := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))

	// THEN: only the first save credits the leaderboard
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	resp := decodeAs[api.SaveScheduleResponse](t, first)
	require.Len(t, resp.Applied, 1)
	assert.Equal(t, "王小明", resp.Applied[0].Contributor)
	assertNumber(t, "5", resp.Applied[0].Quantity)
	assert.Equal(t, "2026-02-04", resp.Schedule.WorkItems[0].LastAccumulatedBy["王小明"])

	require.Equal(t, http.StatusOK, second.Code)
	again := decodeAs[api.SaveScheduleResponse](t, second)
	assert.Empty(t, again.Applied)
	require.Len(t, again.Skipped, 1)
	assert.Equal(t, "already_accumulated", again.Skipped[0].Reason)

	rec := a.do(http.MethodGet, "/api/leaderboards/lb-pipe/rankings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rankings := decodeAs[api.RankingsResponse](t, rec)
	require.Len(t, rankings.Rankings, 1)
	assert.Equal(t, 1, rankings.Rankings[0].Rank)
	assertNumber(t, "5", rankings.Rankings[0].Quantity)
}

func TestSaveSchedule_PastDateIsStoredButNotAccumulated(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")

	rec := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s0", "2026-02-03", "w1", 5))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[api.SaveScheduleResponse](t, rec)
	assert.True(t, resp.CutoffPassed)
	assert.Empty(t, resp.Applied)

	list := a.do(http.MethodGet, "/api/schedules?start=2026-02-01&end=2026-02-28", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeAs[[]api.ScheduleDTO](t, list), 1)

	rankings := decodeAs[api.RankingsResponse](t, a.do(http.MethodGet, "/api/leaderboards/lb-pipe/rankings", nil))
	assert.Empty(t, rankings.Rankings)
}

func TestSaveSchedule_FailedRankingSaveIsRetryable(t *testing.T) {
	// GIVEN: ranking saves that fail
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")
	a.store.FailRankingSaves(errors.New("disk full"))

	// WHEN: the schedule is saved
	rec := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))

	// THEN: the caller is told to retry and nothing was stamped
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, decodeAs[api.SaveScheduleResponse](t, rec).Error)

	// WHEN: the store recovers and the save is retried
	a.store.FailRankingSaves(nil)
	retry := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))

	// THEN: the contribution is counted exactly once
	require.Equal(t, http.StatusOK, retry.Code)
	assert.Len(t, decodeAs[api.SaveScheduleResponse](t, retry).Applied, 1)
	rankings := decodeAs[api.RankingsResponse](t, a.do(http.MethodGet, "/api/leaderboards/lb-pipe/rankings", nil))
	require.Len(t, rankings.Rankings, 1)
	assertNumber(t, "5", rankings.Rankings[0].Quantity)
}

func TestSaveSchedule_BothFailuresReported(t *testing.T) {
	// GIVEN: ranking saves and schedule saves both fail
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")
	a.store.FailRankingSaves(errors.New("rankings disk full"))
	a.store.FailScheduleSaves(errors.New("schedules disk full"))

	// WHEN
	rec := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))

	// THEN: the details carry the accumulation error as well as the save error
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeAs[api.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to save schedule", resp.Error)
	assert.Contains(t, resp.Details, "rankings disk full")
	assert.Contains(t, resp.Details, "schedules disk full")
}

func TestSaveSchedule_ConfiguredMatcher(t *testing.T) {
	// GIVEN: a board authored in lower case and the folded matcher
	folded, err := accumulation.MatcherByName("folded")
	require.NoError(t, err)
	a := newTestAPI(t, api.Options{Matcher: folded})
	a.seedBoard("lb-pipe", "pipe a")
	req := pipeSchedule("s1", "2026-02-04", "w1", 5)
	req.WorkItems[0].Content = "PIPE  A"

	// WHEN
	rec := a.do(http.MethodPost, "/api/schedules", req)

	// THEN: the item still feeds the board
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeAs[api.SaveScheduleResponse](t, rec).Applied, 1)

	// AND: the default matcher would have skipped it
	plain := newTestAPI(t, api.Options{})
	plain.seedBoard("lb-pipe", "pipe a")
	resp := decodeAs[api.SaveScheduleResponse](t, plain.do(http.MethodPost, "/api/schedules", req))
	assert.Empty(t, resp.Applied)
}

func TestSaveSchedule_InvalidDate(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	rec := a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "04/02/2026", "w1", 5))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetLeaderboard_StartsWeeklyCycle(t *testing.T) {
	// GIVEN: a leaderboard with an accumulated total
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")
	a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))

	// WHEN: the leaderboard is reset and more work is accumulated
	rec := a.do(http.MethodPost, "/api/leaderboards/lb-pipe/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, decodeAs[api.LeaderboardDTO](t, rec).ResetAt)
	a.do(http.MethodPost, "/api/schedules", pipeSchedule("s2", "2026-02-04", "w2", 3))

	// THEN: the total keeps growing while the week counts from the reset
	rankings := decodeAs[api.RankingsResponse](t, a.do(http.MethodGet, "/api/leaderboards/lb-pipe/rankings", nil))
	require.Len(t, rankings.Rankings, 1)
	assertNumber(t, "8", rankings.Rankings[0].Quantity)
	assertNumber(t, "3", rankings.Rankings[0].WeekQuantity)
}

func TestLeaderboards_NotFoundAndValidation(t *testing.T) {
	a := newTestAPI(t, api.Options{})

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/leaderboards/nope/reset", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/leaderboards/nope/rankings", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/leaderboards", map[string]string{"id": "x"}).Code)
}

func TestCreateLeaderboard_UpdateKeepsResetStamp(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	a.seedBoard("lb-pipe", "管線A")
	a.do(http.MethodPost, "/api/leaderboards/lb-pipe/reset", nil)

	rec := a.do(http.MethodPost, "/api/leaderboards", map[string]string{"id": "lb-pipe", "work_content": "管線B"})

	require.Equal(t, http.StatusOK, rec.Code)
	lb := decodeAs[api.LeaderboardDTO](t, rec)
	assert.Equal(t, "管線B", lb.WorkContent)
	assert.NotNil(t, lb.ResetAt)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestImportAttendance_ReimportWritesNothing(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	rows := map[string]any{"rows": []map[string]string{
		{"workerId": "u1", "date": "2026-02-02", "clockIn": "09:05"},
		{"workerId": "u1", "date": "2026-02-04", "clockIn": "08:50"},
		{"workerId": "u1", "date": "2026-02-07", "status": "未打卡"},
		{"workerId": "u1", "date": "not-a-date", "clockIn": "08:00"},
	}}

	first := decodeAs[api.ImportAttendanceResponse](t, a.do(http.MethodPost, "/api/attendance/import", rows))
	second := decodeAs[api.ImportAttendanceResponse](t, a.do(http.MethodPost, "/api/attendance/import", rows))

	// 02-02 late, 02-03 synthesized gap, 02-04 normal; the Saturday row is dropped.
	assert.Equal(t, 3, first.Written)
	assert.Equal(t, 1, first.Dropped)
	require.Len(t, first.Diagnostics, 1)
	assert.Equal(t, "date", first.Diagnostics[0].Field)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 3, second.Unchanged)

	rec := a.do(http.MethodGet, "/api/workers/u1/attendance?start=2026-02-01&end=2026-02-28", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeAs[[]api.AttendanceDTO](t, rec)
	require.Len(t, records, 3)
	assert.Equal(t, "late", records[0].Classification)
	assert.True(t, records[0].IsLate)
	assert.Equal(t, "no-clock-in", records[1].Classification)
	assert.True(t, records[1].Synthesized)
	assert.Equal(t, "normal", records[2].Classification)
}

func TestApproveLeave_ReclassifiesNoClockIn(t *testing.T) {
	// GIVEN: a stored no-clock-in day and a pending leave covering it
	a := newTestAPI(t, api.Options{})
	a.do(http.MethodPost, "/api/attendance/import", map[string]any{"rows": []map[string]string{
		{"workerId": "u1", "date": "2026-02-02", "status": "未打卡"},
		{"workerId": "u1", "date": "2026-02-03", "clockIn": "08:50"},
	}})
	created := a.do(http.MethodPost, "/api/leave-applications", map[string]string{
		"worker_id": "u1", "kind": "annual", "start": "2026-02-02", "end": "2026-02-02",
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	leave := decodeAs[api.LeaveApplicationDTO](t, created)
	assert.Equal(t, "pending", leave.Status)

	// WHEN: the leave is approved
	rec := a.do(http.MethodPost, "/api/leave-applications/"+leave.ID+"/approve", nil)

	// THEN: the no-clock-in record becomes leave
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decodeAs[api.LeaveDecisionResponse](t, rec)
	assert.Equal(t, "approved", decision.Leave.Status)
	assert.Equal(t, 1, decision.Reclassified)

	records := decodeAs[[]api.AttendanceDTO](t, a.do(http.MethodGet, "/api/workers/u1/attendance?start=2026-02-02&end=2026-02-03", nil))
	require.Len(t, records, 2)
	assert.Equal(t, "leave", records[0].Classification)
	assert.Equal(t, "normal", records[1].Classification)

	pending := decodeAs[[]api.LeaveApplicationDTO](t, a.do(http.MethodGet, "/api/leave-applications?status=pending", nil))
	assert.Empty(t, pending)
}

func TestRejectLeave_LeavesAttendanceAlone(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	a.do(http.MethodPost, "/api/attendance/import", map[string]any{"rows": []map[string]string{
		{"workerId": "u1", "date": "2026-02-02", "status": "未打卡"},
	}})
	leave := decodeAs[api.LeaveApplicationDTO](t, a.do(http.MethodPost, "/api/leave-applications", map[string]string{
		"worker_id": "u1", "kind": "sick", "start": "2026-02-02", "end": "2026-02-02",
	}))

	rec := a.do(http.MethodPost, "/api/leave-applications/"+leave.ID+"/reject", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeAs[api.LeaveDecisionResponse](t, rec).Reclassified)
	records := decodeAs[[]api.AttendanceDTO](t, a.do(http.MethodGet, "/api/workers/u1/attendance?start=2026-02-02&end=2026-02-02", nil))
	require.Len(t, records, 1)
	assert.Equal(t, "no-clock-in", records[0].Classification)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/leave-applications/missing/approve", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/leave-applications", map[string]string{
		"worker_id": "u1", "start": "2026-02-05", "end": "2026-02-02",
	}).Code)
}

// =============================================================================
// SCORES
// =============================================================================

// seedScoredWorker gives 王小明 one half-finished item today and one late day.
func seedScoredWorker(a *testAPI) {
	a.seedWorker("u1", "王小明")
	a.do(http.MethodPost, "/api/schedules", pipeSchedule("s1", "2026-02-04", "w1", 5))
	a.do(http.MethodPost, "/api/attendance/import", map[string]any{"rows": []map[string]string{
		{"workerId": "u1", "date": "2026-02-02", "clockIn": "09:05"},
		{"workerId": "u1", "date": "2026-02-03", "clockIn": "08:50"},
		{"workerId": "u1", "date": "2026-02-04", "clockIn": "08:30"},
	}})
}

func TestGetScore_MonthlyBreakdown(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	seedScoredWorker(a)

	rec := a.do(http.MethodGet, "/api/workers/u1/score?month=2026-02", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	score := decodeAs[api.ScoreDTO](t, rec)
	assert.Equal(t, "2026-02-04", score.End, "the range stops at today")
	assertNumber(t, "100", score.Base)
	assertNumber(t, "-2", score.CompletionRateAdjustment)
	assertNumber(t, "50", score.AverageCompletionRate)
	assert.Equal(t, 1, score.LateCount)
	assertNumber(t, "-1", score.LatePenalty)
	assertNumber(t, "97", score.Score)
	assert.Equal(t, "flat", score.LatePolicy)
	require.Len(t, score.Items, 1)
	assertNumber(t, "50", score.Items[0].Rate)
}

func TestGetDailyScores_CumulativeWithDeltas(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	seedScoredWorker(a)

	rec := a.do(http.MethodGet, "/api/workers/u1/score/daily?month=2026-02", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeAs[[]api.DayScoreDTO](t, rec)
	require.Len(t, days, 4)
	want := []struct{ score, delta string }{{"100", "0"}, {"99", "-1"}, {"99", "0"}, {"97", "-2"}}
	for i, w := range want {
		assertNumber(t, w.score, days[i].Score)
		assertNumber(t, w.delta, days[i].Delta)
	}
	assert.True(t, days[1].Late)
}

func TestGetScore_UnknownWorkerAndBadMonth(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/workers/ghost/score", nil).Code)
	a.seedWorker("u1", "王小明")
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/workers/u1/score?month=2026-13", nil).Code)
}

func TestAdjustments_CreateListDelete(t *testing.T) {
	// GIVEN: a scored worker
	a := newTestAPI(t, api.Options{})
	seedScoredWorker(a)

	// WHEN: a correction is appended
	rec := a.do(http.MethodPost, "/api/adjustments", map[string]any{
		"worker_id": "u1", "date": "2026-02-03", "delta": -1.5, "note": "safety briefing missed", "evaluator": "lead",
	})

	// THEN: it shows up in the list and the score
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decodeAs[api.AdjustmentDTO](t, rec)
	assertNumber(t, "-1.5", adj.Delta)
	list := decodeAs[[]api.AdjustmentDTO](t, a.do(http.MethodGet, "/api/workers/u1/adjustments?month=2026-02", nil))
	require.Len(t, list, 1)
	score := decodeAs[api.ScoreDTO](t, a.do(http.MethodGet, "/api/workers/u1/score?month=2026-02", nil))
	assertNumber(t, "95.5", score.Score)

	// WHEN: it is deleted
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/adjustments/"+adj.ID, nil).Code)

	// THEN: the score is restored and a second delete is a 404
	score = decodeAs[api.ScoreDTO](t, a.do(http.MethodGet, "/api/workers/u1/score?month=2026-02", nil))
	assertNumber(t, "97", score.Score)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/adjustments/"+adj.ID, nil).Code)
}

func TestCreateAdjustment_UnknownWorker(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	rec := a.do(http.MethodPost, "/api/adjustments", map[string]any{"worker_id": "ghost", "date": "2026-02-03", "delta": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_PutReplacesStoredDocument(t *testing.T) {
	// GIVEN: a scored worker under the default rules
	a := newTestAPI(t, api.Options{})
	seedScoredWorker(a)
	current := decodeAs[api.RulesResponse](t, a.do(http.MethodGet, "/api/rules", nil))
	assert.True(t, current.Editable)

	// WHEN: a YAML document with one broken rule and disabled penalties is stored
	doc := `
completionRateRules:
  - {minRate: 0, maxRate: 100, delta: -3}
  - {minRate: abc, maxRate: 10, delta: 1}
penaltyConfig:
  enabled: false
`
	rec := a.do(http.MethodPut, "/api/rules", doc)

	// THEN: the broken rule is reported and the new table prices the score
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeAs[api.RulesResponse](t, rec).Diagnostics, 1)
	score := decodeAs[api.ScoreDTO](t, a.do(http.MethodGet, "/api/workers/u1/score?month=2026-02", nil))
	assertNumber(t, "97", score.Score)
	assertNumber(t, "0", score.LatePenalty)
	assert.Equal(t, "disabled", score.LatePolicy)
}

func TestRules_RejectsUnreadableDocument(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, "/api/rules", "{not json").Code)
}

func TestRules_FileManagedAreReadOnly(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveRuleDocument(context.Background(), []byte(`{"completionRateRules":[]}`)))
	a := newTestAPI(t, api.Options{Rules: &factory.StoredRuleSource{Store: mem}})

	rec := a.do(http.MethodPut, "/api/rules", `{"completionRateRules":[]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	current := decodeAs[api.RulesResponse](t, a.do(http.MethodGet, "/api/rules", nil))
	assert.False(t, current.Editable)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	rec := a.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
