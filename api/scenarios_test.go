package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crew-engine/api"
)

func TestListScenarios(t *testing.T) {
	a := newTestAPI(t, api.Options{})

	rec := a.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	scenarios := decodeAs[[]api.ScenarioDTO](t, rec)
	require.Len(t, scenarios, 3)
	assert.Equal(t, "pipeline-crew", scenarios[0].ID)
}

func TestLoadScenario_PipelineCrewIsIdempotent(t *testing.T) {
	// GIVEN: an empty store, today being the Wednesday of the demo week
	a := newTestAPI(t, api.Options{})
	load := map[string]string{"scenario_id": "pipeline-crew"}

	// WHEN: the scenario is loaded twice
	first := a.do(http.MethodPost, "/api/scenarios/load", load)
	second := a.do(http.MethodPost, "/api/scenarios/load", load)

	// THEN: five schedules with three contributions each are counted once
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	resp := decodeAs[api.LoadScenarioResponse](t, first)
	assert.Equal(t, 5, resp.Schedules)
	assert.Equal(t, 15, resp.Applied)
	assert.Equal(t, "Pipeline Crew", resp.Scenario.Name)

	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 0, decodeAs[api.LoadScenarioResponse](t, second).Applied)

	rankings := decodeAs[api.RankingsResponse](t, a.do(http.MethodGet, "/api/leaderboards/lb-pipeline-a/rankings", nil))
	require.Len(t, rankings.Rankings, 1)
	assert.Equal(t, "王小明", rankings.Rankings[0].Name)
	assertNumber(t, "40", rankings.Rankings[0].Quantity)
}

func TestLoadScenario_AttendanceFeedsScores(t *testing.T) {
	a := newTestAPI(t, api.Options{})

	first := decodeAs[api.LoadScenarioResponse](t, a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "attendance"}))
	second := decodeAs[api.LoadScenarioResponse](t, a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "attendance"}))

	// Two workers over five business days; the missing Thursday is synthesized.
	assert.Equal(t, 10, first.Imported)
	assert.Equal(t, 0, second.Imported)

	li := decodeAs[[]api.AttendanceDTO](t, a.do(http.MethodGet, "/api/workers/crew-li/attendance?start=2026-01-29&end=2026-01-29", nil))
	require.Len(t, li, 1)
	assert.Equal(t, "leave", li[0].Classification)

	score := decodeAs[api.ScoreDTO](t, a.do(http.MethodGet, "/api/workers/crew-wang/score?month=2026-01", nil))
	assert.Equal(t, 1, score.LateCount)
	assert.Equal(t, 1, score.NoClockInCount)
	assertNumber(t, "97", score.Score)
}

func TestLoadScenario_SharedPool(t *testing.T) {
	a := newTestAPI(t, api.Options{})

	rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "shared-pool"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeAs[api.LoadScenarioResponse](t, rec).Schedules)
}

func TestLoadScenario_Unknown(t *testing.T) {
	a := newTestAPI(t, api.Options{})
	rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
