/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario registers workers and leaderboards, then
	feeds schedules and attendance through the same engines the API uses.

AVAILABLE SCENARIOS:

	pipeline-crew:  Solo and collaborative work items over one week
	attendance:     A month of clock-ins with lateness, gaps and leave
	shared-pool:    Shared versus separate collaboration on one board

HOW SCENARIOS WORK:
 1. Register workers and leaderboards (fixed ids, upserted)
 2. Accumulate the schedules as one batch as of the earliest date
 3. Import attendance rows through the reconciler

  Loading a scenario twice changes nothing: accumulation is idempotent and
  attendance imports deduplicate against stored records.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pipeline-crew"}

SEE ALSO:
  - handlers.go: the engines the loaders drive
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/crew-engine/attendance"
	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario  ScenarioDTO `json:"scenario"`
	Applied   int         `json:"applied"`
	Imported  int         `json:"imported"`
	Schedules int         `json:"schedules"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "pipeline-crew",
		Name:        "Pipeline Crew",
		Description: "Three workers laying pipe for a week; one collaborative item per day",
	},
	{
		ID:          "attendance",
		Name:        "Attendance Month",
		Description: "Clock-ins with lateness, a missing day and an approved leave",
	},
	{
		ID:          "shared-pool",
		Name:        "Shared Pool",
		Description: "The same crew item in shared and separate collaboration modes",
	},
}

type scenarioTotals struct {
	applied, imported, schedules int
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		totals scenarioTotals
		err    error
		found  ScenarioDTO
	)
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			found = s
		}
	}
	switch req.ScenarioID {
	case "pipeline-crew":
		totals, err = h.loadPipelineCrewScenario(r.Context())
	case "attendance":
		totals, err = h.loadAttendanceScenario(r.Context())
	case "shared-pool":
		totals, err = h.loadSharedPoolScenario(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.logger.Info("scenario loaded",
		zap.String("scenario", req.ScenarioID),
		zap.Int("applied", totals.applied),
		zap.Int("imported", totals.imported))
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Scenario:  found,
		Applied:   totals.applied,
		Imported:  totals.imported,
		Schedules: totals.schedules,
	})
}

// =============================================================================
// LOADERS
// =============================================================================

// weekStart is the Monday on or before today.
func (h *Handler) weekStart() generic.TimePoint {
	day := h.today()
	for day.Weekday() != 1 {
		day = day.AddDays(-1)
	}
	return day
}

func (h *Handler) seedWorkers(ctx context.Context, workers ...generic.Worker) error {
	for _, w := range workers {
		if err := h.Store.SaveWorker(ctx, w); err != nil {
			return fmt.Errorf("save worker %s: %w", w.ID, err)
		}
	}
	return nil
}

// seedSchedules accumulates the schedules as one batch as of the earliest
// date, so none of them is past the cutoff, and stores the stamped copies.
func (h *Handler) seedSchedules(ctx context.Context, schedules []generic.Schedule, totals *scenarioTotals) error {
	if len(schedules) == 0 {
		return nil
	}
	asOf := schedules[0].Date
	for _, s := range schedules[1:] {
		if s.Date.Before(asOf) {
			asOf = s.Date
		}
	}

	results, accErr := h.Accumulator.AccumulateBatch(ctx, schedules, asOf)
	for i, res := range results {
		if res == nil {
			continue
		}
		if err := h.Store.SaveSchedule(ctx, res.Schedule); err != nil {
			return fmt.Errorf("save schedule %s: %w", schedules[i].ID, err)
		}
		totals.applied += len(res.Applied)
		totals.schedules++
	}
	if accErr != nil {
		return fmt.Errorf("accumulate: %w", accErr)
	}
	return nil
}

func (h *Handler) loadPipelineCrewScenario(ctx context.Context) (scenarioTotals, error) {
	var totals scenarioTotals
	if err := h.seedWorkers(ctx,
		generic.Worker{ID: "crew-wang", Name: "王小明"},
		generic.Worker{ID: "crew-li", Name: "李大華"},
		generic.Worker{ID: "crew-chen", Name: "陳志強"},
	); err != nil {
		return totals, err
	}
	for _, lb := range []generic.Leaderboard{
		{ID: "lb-pipeline-a", WorkContent: "管線A", Title: "Pipeline A"},
		{ID: "lb-welding", WorkContent: "焊接", Title: "Welding"},
	} {
		if err := h.Store.SaveLeaderboard(ctx, lb); err != nil {
			return totals, fmt.Errorf("save leaderboard %s: %w", lb.ID, err)
		}
	}

	monday := h.weekStart()
	var schedules []generic.Schedule
	for i := 0; i < 5; i++ {
		date := monday.AddDays(i)
		schedules = append(schedules, generic.Schedule{
			ID:   generic.ScheduleID(fmt.Sprintf("demo-pipeline-%s", date)),
			Date: date,
			WorkItems: []generic.RawWorkItem{
				{
					ID: fmt.Sprintf("pipe-%d", i), Content: "管線A 鋪設",
					ResponsiblePerson: "王小明",
					TargetQuantity:    generic.NewNumber(10),
					ActualQuantity:    generic.NewNumber(float64(6 + i)),
				},
				{
					ID: fmt.Sprintf("weld-%d", i), Content: "焊接",
					IsCollaborative: true, CollabMode: "separate",
					Collaborators: []generic.RawContributor{
						{Name: "李大華", TargetQuantity: generic.NewNumber(4), ActualQuantity: generic.NewNumber(4)},
						{Name: "陳志強", TargetQuantity: generic.NewNumber(4), ActualQuantity: generic.NewNumber(float64(2 + i%3))},
					},
				},
			},
		})
	}
	return totals, h.seedSchedules(ctx, schedules, &totals)
}

func (h *Handler) loadAttendanceScenario(ctx context.Context) (scenarioTotals, error) {
	var totals scenarioTotals
	if err := h.seedWorkers(ctx,
		generic.Worker{ID: "crew-wang", Name: "王小明"},
		generic.Worker{ID: "crew-li", Name: "李大華"},
	); err != nil {
		return totals, err
	}

	monday := h.weekStart().AddDays(-7)
	leave := generic.LeaveApplication{
		ID: "demo-leave-li", WorkerID: "crew-li", Kind: "annual",
		Start: monday.AddDays(3), End: monday.AddDays(3), Status: generic.LeaveApproved,
	}
	if err := h.Store.SaveLeaveApplication(ctx, leave); err != nil {
		return totals, fmt.Errorf("save leave: %w", err)
	}

	var rows []attendance.RawRow
	clockIns := []string{"08:55", "09:12", "08:40", "", "08:59"}
	for i, clock := range clockIns {
		date := monday.AddDays(i).String()
		if clock != "" {
			rows = append(rows, attendance.RawRow{WorkerID: "crew-wang", Date: date, ClockIn: clock})
		}
		if i != 3 {
			rows = append(rows, attendance.RawRow{WorkerID: "crew-li", Date: date, ClockIn: "08:30"})
		}
	}
	// Weekend placeholder rows from the clock export are dropped.
	rows = append(rows, attendance.RawRow{WorkerID: "crew-wang", Date: monday.AddDays(5).String(), Status: "未打卡"})

	importer := attendance.NewImporter(h.Store, h.Store, h.reconciler(), h.logger.Named("attendance"))
	res, err := importer.Import(ctx, rows)
	if err != nil {
		return totals, err
	}
	totals.imported = len(res.Records)
	return totals, nil
}

func (h *Handler) loadSharedPoolScenario(ctx context.Context) (scenarioTotals, error) {
	var totals scenarioTotals
	if err := h.seedWorkers(ctx,
		generic.Worker{ID: "crew-li", Name: "李大華"},
		generic.Worker{ID: "crew-chen", Name: "陳志強"},
	); err != nil {
		return totals, err
	}
	if err := h.Store.SaveLeaderboard(ctx, generic.Leaderboard{ID: "lb-trench", WorkContent: "挖溝"}); err != nil {
		return totals, fmt.Errorf("save leaderboard: %w", err)
	}

	monday := h.weekStart()
	crew := []generic.RawContributor{{Name: "李大華"}, {Name: "陳志強"}}
	schedules := []generic.Schedule{
		{
			ID: generic.ScheduleID("demo-shared-" + monday.String()), Date: monday,
			WorkItems: []generic.RawWorkItem{{
				ID: "trench-shared", Content: "挖溝", IsCollaborative: true, CollabMode: "shared",
				TargetQuantity: generic.NewNumber(20), ActualQuantity: generic.NewNumber(16),
				Collaborators: crew,
			}},
		},
		{
			ID: generic.ScheduleID("demo-separate-" + monday.AddDays(1).String()), Date: monday.AddDays(1),
			WorkItems: []generic.RawWorkItem{{
				ID: "trench-separate", Content: "挖溝", IsCollaborative: true, CollabMode: "separate",
				TargetQuantity: generic.NewNumber(20), ActualQuantity: generic.NewNumber(16),
				Collaborators: crew,
			}},
		},
	}
	return totals, h.seedSchedules(ctx, schedules, &totals)
}
