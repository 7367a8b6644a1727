// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/crew-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	schedules    map[generic.ScheduleID]generic.Schedule
	leaderboards map[generic.LeaderboardID]generic.Leaderboard
	rankings     map[generic.LeaderboardID][]generic.Ranking
	ledger       map[generic.LedgerKey]generic.TimePoint
	attendance   map[attendanceKey]generic.AttendanceRecord
	adjustments  []generic.PerformanceAdjustment
	leaves       map[generic.LeaveID]generic.LeaveApplication
	workers      map[generic.WorkerID]generic.Worker
	ruleDoc      []byte

	rankingSaveErr  error
	scheduleSaveErr error
}

type attendanceKey struct {
	WorkerID generic.WorkerID
	Date     string
}

var _ generic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		schedules:    make(map[generic.ScheduleID]generic.Schedule),
		leaderboards: make(map[generic.LeaderboardID]generic.Leaderboard),
		rankings:     make(map[generic.LeaderboardID][]generic.Ranking),
		ledger:       make(map[generic.LedgerKey]generic.TimePoint),
		attendance:   make(map[attendanceKey]generic.AttendanceRecord),
		leaves:       make(map[generic.LeaveID]generic.LeaveApplication),
		workers:      make(map[generic.WorkerID]generic.Worker),
	}
}

// FailRankingSaves makes every subsequent ranking save return err. A nil
// err restores normal behavior. Used to exercise save-failure paths.
func (m *Memory) FailRankingSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rankingSaveErr = err
}

// FailScheduleSaves is FailRankingSaves for schedule saves.
func (m *Memory) FailScheduleSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleSaveErr = err
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) SaveSchedule(_ context.Context, s generic.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduleSaveErr != nil {
		return m.scheduleSaveErr
	}
	m.schedules[s.ID] = s.Clone()
	return nil
}

func (m *Memory) LoadSchedule(_ context.Context, id generic.ScheduleID) (generic.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return generic.Schedule{}, fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, id)
	}
	return s.Clone(), nil
}

func (m *Memory) LoadSchedulesInRange(_ context.Context, start, end generic.TimePoint) ([]generic.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Schedule
	for _, s := range m.schedules {
		if s.Date.AfterOrEqual(start) && s.Date.BeforeOrEqual(end) {
			result = append(result, s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

func (m *Memory) SaveLeaderboard(_ context.Context, lb generic.Leaderboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaderboards[lb.ID] = lb
	return nil
}

func (m *Memory) LoadLeaderboard(_ context.Context, id generic.LeaderboardID) (generic.Leaderboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lb, ok := m.leaderboards[id]
	if !ok {
		return generic.Leaderboard{}, fmt.Errorf("%w: %s", generic.ErrLeaderboardNotFound, id)
	}
	return lb, nil
}

// LoadLeaderboards returns leaderboards ordered by id.
func (m *Memory) LoadLeaderboards(_ context.Context) ([]generic.Leaderboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Leaderboard, 0, len(m.leaderboards))
	for _, lb := range m.leaderboards {
		result = append(result, lb)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ResetLeaderboard(_ context.Context, id generic.LeaderboardID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lb, ok := m.leaderboards[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrLeaderboardNotFound, id)
	}
	lb.ResetAt = &at
	m.leaderboards[id] = lb
	for i := range m.rankings[id] {
		m.rankings[id][i].WeekQuantity = generic.DecInt(0)
	}
	return nil
}

func (m *Memory) LoadRankings(_ context.Context, id generic.LeaderboardID) ([]generic.Ranking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRankingsLocked(id), nil
}

func (m *Memory) SaveRankings(_ context.Context, id generic.LeaderboardID, rankings []generic.Ranking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRankingsLocked(id, rankings)
}

func (m *Memory) loadRankingsLocked(id generic.LeaderboardID) []generic.Ranking {
	return append([]generic.Ranking(nil), m.rankings[id]...)
}

func (m *Memory) saveRankingsLocked(id generic.LeaderboardID, rankings []generic.Ranking) error {
	if m.rankingSaveErr != nil {
		return m.rankingSaveErr
	}
	m.rankings[id] = append([]generic.Ranking(nil), rankings...)
	return nil
}

// =============================================================================
// ACCUMULATION LEDGER
// =============================================================================

func (m *Memory) Watermark(_ context.Context, key generic.LedgerKey) (generic.TimePoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tp, ok := m.ledger[key]
	return tp, ok, nil
}

func (m *Memory) Stamp(_ context.Context, stamps []generic.LedgerStamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stampLocked(stamps)
	return nil
}

func (m *Memory) stampLocked(stamps []generic.LedgerStamp) {
	for _, s := range stamps {
		current, ok := m.ledger[s.Key]
		m.ledger[s.Key] = generic.Advance(current, ok, s.Date)
	}
}

// =============================================================================
// TRANSACTIONAL ACCUMULATION
// =============================================================================

// WithAccumulationTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithAccumulationTx(_ context.Context, fn func(generic.RankingStore, generic.AccumulationLedger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txMemoryView{parent: m}
	if err := fn(view, view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	rankings map[generic.LeaderboardID][]generic.Ranking
	ledger   map[generic.LedgerKey]generic.TimePoint
}

func (m *Memory) snapshot() memorySnapshot {
	rankings := make(map[generic.LeaderboardID][]generic.Ranking, len(m.rankings))
	for k, v := range m.rankings {
		rankings[k] = append([]generic.Ranking(nil), v...)
	}
	ledger := make(map[generic.LedgerKey]generic.TimePoint, len(m.ledger))
	for k, v := range m.ledger {
		ledger[k] = v
	}
	return memorySnapshot{rankings: rankings, ledger: ledger}
}

func (m *Memory) restore(s memorySnapshot) {
	m.rankings = s.rankings
	m.ledger = s.ledger
}

// txMemoryView runs against the parent's maps while the parent lock is held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) LoadRankings(_ context.Context, id generic.LeaderboardID) ([]generic.Ranking, error) {
	return tv.parent.loadRankingsLocked(id), nil
}

func (tv *txMemoryView) SaveRankings(_ context.Context, id generic.LeaderboardID, rankings []generic.Ranking) error {
	return tv.parent.saveRankingsLocked(id, rankings)
}

func (tv *txMemoryView) Watermark(_ context.Context, key generic.LedgerKey) (generic.TimePoint, bool, error) {
	tp, ok := tv.parent.ledger[key]
	return tp, ok, nil
}

func (tv *txMemoryView) Stamp(_ context.Context, stamps []generic.LedgerStamp) error {
	tv.parent.stampLocked(stamps)
	return nil
}

// =============================================================================
// RULE DOCUMENT
// =============================================================================

func (m *Memory) LoadRuleDocument(_ context.Context) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ruleDoc == nil {
		return nil, false, nil
	}
	return append([]byte(nil), m.ruleDoc...), true, nil
}

func (m *Memory) SaveRuleDocument(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleDoc = append([]byte(nil), doc...)
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) LoadAttendance(_ context.Context, worker generic.WorkerID, from, to generic.TimePoint) ([]generic.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.AttendanceRecord
	for k, rec := range m.attendance {
		if k.WorkerID != worker {
			continue
		}
		if rec.Date.AfterOrEqual(from) && rec.Date.BeforeOrEqual(to) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// SaveAttendance upserts all records under one lock.
func (m *Memory) SaveAttendance(_ context.Context, records []generic.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.attendance[attendanceKey{WorkerID: rec.WorkerID, Date: rec.Date.String()}] = rec
	}
	return nil
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

func (m *Memory) AppendAdjustment(_ context.Context, adj generic.PerformanceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.adjustments {
		if existing.ID == adj.ID {
			return fmt.Errorf("adjustment %s already exists", adj.ID)
		}
	}
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *Memory) DeleteAdjustment(_ context.Context, id generic.AdjustmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, adj := range m.adjustments {
		if adj.ID == id {
			m.adjustments = append(m.adjustments[:i], m.adjustments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", generic.ErrAdjustmentNotFound, id)
}

func (m *Memory) LoadAdjustments(_ context.Context, worker generic.WorkerID, from, to generic.TimePoint) ([]generic.PerformanceAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.PerformanceAdjustment
	for _, adj := range m.adjustments {
		if adj.WorkerID == worker && adj.Date.AfterOrEqual(from) && adj.Date.BeforeOrEqual(to) {
			result = append(result, adj)
		}
	}
	return result, nil
}

// =============================================================================
// LEAVE APPLICATIONS
// =============================================================================

func (m *Memory) SaveLeaveApplication(_ context.Context, la generic.LeaveApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[la.ID] = la
	return nil
}

func (m *Memory) LoadLeaveApplication(_ context.Context, id generic.LeaveID) (generic.LeaveApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	la, ok := m.leaves[id]
	if !ok {
		return generic.LeaveApplication{}, fmt.Errorf("%w: %s", generic.ErrLeaveNotFound, id)
	}
	return la, nil
}

func (m *Memory) LoadLeaveApplications(_ context.Context) ([]generic.LeaveApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.LeaveApplication, 0, len(m.leaves))
	for _, la := range m.leaves {
		result = append(result, la)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Start.Equal(result[j].Start) {
			return result[i].Start.Before(result[j].Start)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// WORKERS
// =============================================================================

func (m *Memory) SaveWorker(_ context.Context, w generic.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) LoadWorker(_ context.Context, id generic.WorkerID) (generic.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return generic.Worker{}, fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	return w, nil
}

func (m *Memory) LoadWorkers(_ context.Context) ([]generic.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
