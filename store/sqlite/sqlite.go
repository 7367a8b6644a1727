/*
Package sqlite provides a SQLite-backed implementation of generic.Store.

PURPOSE:
  Persists everything the engines read and write: schedules, leaderboards
  and their rankings, the accumulation ledger, attendance, adjustments,
  leave applications, workers and the rule document.

KEY TABLES:
  schedules:           one row per schedule, work items as raw JSON
  leaderboards:        matching fields and the weekly reset stamp
  rankings:            full-replace list per leaderboard, ordered by position
  accumulation_ledger: watermark per (leaderboard, item, contributor)
  attendance:          one canonical record per (worker, date)
  adjustments:         append-only manual corrections
  leave_applications:  approval workflow records
  rule_document:       single row holding the raw rule document

ACCUMULATION TRANSACTIONS:
  WithAccumulationTx runs the ranking save and the ledger stamps inside one
  sql.Tx. A failed save rolls back the stamps with it.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The connection pool is capped at one
  connection so ":memory:" databases are shared by every call.

DATES:
  Calendar days are stored as "2006-01-02" text and instants as RFC3339,
  so range predicates compare lexicographically.

SEE ALSO:
  - generic/store.go: interface definitions
  - generic/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/crew-engine/generic"
)

const dayLayout = "2006-01-02"

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workers_name ON workers(name);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		items_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_date ON schedules(date);

	CREATE TABLE IF NOT EXISTS leaderboards (
		id TEXT PRIMARY KEY,
		work_content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		reset_at TEXT
	);

	-- Full-replace list; position preserves rank order
	CREATE TABLE IF NOT EXISTS rankings (
		leaderboard_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		week_quantity TEXT NOT NULL,
		rank INTEGER NOT NULL,
		PRIMARY KEY (leaderboard_id, position)
	);

	CREATE TABLE IF NOT EXISTS accumulation_ledger (
		leaderboard_id TEXT NOT NULL,
		item_key TEXT NOT NULL,
		contributor TEXT NOT NULL,
		watermark TEXT NOT NULL,
		schedule_id TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (leaderboard_id, item_key, contributor)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		clock_in TEXT,
		is_late BOOLEAN NOT NULL DEFAULT FALSE,
		classification TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		synthesized BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (worker_id, date)
	);

	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		delta TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		evaluator TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_adjustments_worker_date ON adjustments(worker_id, date);

	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_leave_worker ON leave_applications(worker_id);

	CREATE TABLE IF NOT EXISTS rule_document (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		document TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) SaveSchedule(ctx context.Context, sch generic.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := json.Marshal(sch.WorkItems)
	if err != nil {
		return fmt.Errorf("failed to encode work items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, date, items_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, items_json = excluded.items_json, updated_at = excluded.updated_at
	`, sch.ID, sch.Date.String(), string(items), now())
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *Store) LoadSchedule(ctx context.Context, id generic.ScheduleID) (generic.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, date, items_json FROM schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Schedule{}, fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, id)
	}
	return sch, err
}

func (s *Store) LoadSchedulesInRange(ctx context.Context, start, end generic.TimePoint) ([]generic.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, items_json FROM schedules
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, id ASC
	`, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var result []generic.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sch)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (generic.Schedule, error) {
	var (
		sch   generic.Schedule
		date  string
		items string
	)
	if err := row.Scan(&sch.ID, &date, &items); err != nil {
		return sch, err
	}
	sch.Date = parseDay(date)
	if err := json.Unmarshal([]byte(items), &sch.WorkItems); err != nil {
		return sch, fmt.Errorf("failed to decode work items of %s: %w", sch.ID, err)
	}
	return sch, nil
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

func (s *Store) SaveLeaderboard(ctx context.Context, lb generic.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboards (id, work_content, title, name, reset_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET work_content = excluded.work_content, title = excluded.title,
			name = excluded.name, reset_at = excluded.reset_at
	`, lb.ID, lb.WorkContent, lb.Title, lb.Name, nullTime(lb.ResetAt))
	if err != nil {
		return fmt.Errorf("failed to save leaderboard: %w", err)
	}
	return nil
}

func (s *Store) LoadLeaderboard(ctx context.Context, id generic.LeaderboardID) (generic.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, work_content, title, name, reset_at FROM leaderboards WHERE id = ?`, id)
	lb, err := scanLeaderboard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Leaderboard{}, fmt.Errorf("%w: %s", generic.ErrLeaderboardNotFound, id)
	}
	return lb, err
}

func (s *Store) LoadLeaderboards(ctx context.Context) ([]generic.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, work_content, title, name, reset_at FROM leaderboards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboards: %w", err)
	}
	defer rows.Close()

	var result []generic.Leaderboard
	for rows.Next() {
		lb, err := scanLeaderboard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lb)
	}
	return result, rows.Err()
}

func scanLeaderboard(row scanner) (generic.Leaderboard, error) {
	var (
		lb      generic.Leaderboard
		resetAt sql.NullString
	)
	if err := row.Scan(&lb.ID, &lb.WorkContent, &lb.Title, &lb.Name, &resetAt); err != nil {
		return lb, err
	}
	if resetAt.Valid {
		if t, err := time.Parse(time.RFC3339, resetAt.String); err == nil {
			lb.ResetAt = &t
		}
	}
	return lb, nil
}

// ResetLeaderboard stamps reset_at and zeroes week quantities in one transaction.
func (s *Store) ResetLeaderboard(ctx context.Context, id generic.LeaderboardID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE leaderboards SET reset_at = ? WHERE id = ?`, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to reset leaderboard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrLeaderboardNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rankings SET week_quantity = '0' WHERE leaderboard_id = ?`, id); err != nil {
		return fmt.Errorf("failed to zero week quantities: %w", err)
	}
	return tx.Commit()
}

func (s *Store) LoadRankings(ctx context.Context, id generic.LeaderboardID) ([]generic.Ranking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadRankings(ctx, s.db, id)
}

// SaveRankings replaces the leaderboard's list atomically.
func (s *Store) SaveRankings(ctx context.Context, id generic.LeaderboardID, rankings []generic.Ranking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := saveRankings(ctx, tx, id, rankings); err != nil {
		return err
	}
	return tx.Commit()
}

func loadRankings(ctx context.Context, q querier, id generic.LeaderboardID) ([]generic.Ranking, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, quantity, week_quantity, rank FROM rankings
		WHERE leaderboard_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	var result []generic.Ranking
	for rows.Next() {
		var (
			r        generic.Ranking
			quantity string
			week     string
		)
		if err := rows.Scan(&r.Name, &quantity, &week, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		r.Quantity = generic.MustParseDecimal(quantity)
		r.WeekQuantity = generic.MustParseDecimal(week)
		result = append(result, r)
	}
	return result, rows.Err()
}

func saveRankings(ctx context.Context, q querier, id generic.LeaderboardID, rankings []generic.Ranking) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM rankings WHERE leaderboard_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear rankings: %w", err)
	}
	for i, r := range rankings {
		_, err := q.ExecContext(ctx, `
			INSERT INTO rankings (leaderboard_id, position, name, quantity, week_quantity, rank)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, r.Name, r.Quantity.String(), r.WeekQuantity.String(), r.Rank)
		if err != nil {
			return fmt.Errorf("failed to insert ranking: %w", err)
		}
	}
	return nil
}

// =============================================================================
// ACCUMULATION LEDGER
// =============================================================================

func (s *Store) Watermark(ctx context.Context, key generic.LedgerKey) (generic.TimePoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return watermark(ctx, s.db, key)
}

func (s *Store) Stamp(ctx context.Context, stamps []generic.LedgerStamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := stamp(ctx, tx, stamps); err != nil {
		return err
	}
	return tx.Commit()
}

func watermark(ctx context.Context, q querier, key generic.LedgerKey) (generic.TimePoint, bool, error) {
	var date string
	err := q.QueryRowContext(ctx, `
		SELECT watermark FROM accumulation_ledger
		WHERE leaderboard_id = ? AND item_key = ? AND contributor = ?
	`, key.LeaderboardID, key.ItemKey, key.Contributor).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.TimePoint{}, false, nil
	}
	if err != nil {
		return generic.TimePoint{}, false, fmt.Errorf("failed to read watermark: %w", err)
	}
	return parseDay(date), true, nil
}

// stamp upserts forward-only: an older date never replaces a newer one.
func stamp(ctx context.Context, q querier, stamps []generic.LedgerStamp) error {
	ts := now()
	for _, st := range stamps {
		_, err := q.ExecContext(ctx, `
			INSERT INTO accumulation_ledger (leaderboard_id, item_key, contributor, watermark, schedule_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(leaderboard_id, item_key, contributor) DO UPDATE SET
				schedule_id = CASE WHEN excluded.watermark >= accumulation_ledger.watermark
					THEN excluded.schedule_id ELSE accumulation_ledger.schedule_id END,
				watermark = MAX(accumulation_ledger.watermark, excluded.watermark),
				updated_at = excluded.updated_at
		`, st.Key.LeaderboardID, st.Key.ItemKey, st.Key.Contributor, st.Date.String(), st.ScheduleID, ts)
		if err != nil {
			return fmt.Errorf("failed to stamp %s: %w", st.Key, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL ACCUMULATION
// =============================================================================

// WithAccumulationTx runs fn inside one database transaction.
func (s *Store) WithAccumulationTx(ctx context.Context, fn func(generic.RankingStore, generic.AccumulationLedger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txStore{tx: sqlTx}
	if err := fn(view, view); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadRankings(ctx context.Context, id generic.LeaderboardID) ([]generic.Ranking, error) {
	return loadRankings(ctx, ts.tx, id)
}

func (ts *txStore) SaveRankings(ctx context.Context, id generic.LeaderboardID, rankings []generic.Ranking) error {
	return saveRankings(ctx, ts.tx, id, rankings)
}

func (ts *txStore) Watermark(ctx context.Context, key generic.LedgerKey) (generic.TimePoint, bool, error) {
	return watermark(ctx, ts.tx, key)
}

func (ts *txStore) Stamp(ctx context.Context, stamps []generic.LedgerStamp) error {
	return stamp(ctx, ts.tx, stamps)
}

// =============================================================================
// RULE DOCUMENT
// =============================================================================

func (s *Store) LoadRuleDocument(ctx context.Context) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM rule_document WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load rule document: %w", err)
	}
	return []byte(doc), true, nil
}

func (s *Store) SaveRuleDocument(ctx context.Context, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_document (id, document, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, string(doc), now())
	if err != nil {
		return fmt.Errorf("failed to save rule document: %w", err)
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (s *Store) LoadAttendance(ctx context.Context, worker generic.WorkerID, from, to generic.TimePoint) ([]generic.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, date, clock_in, is_late, classification, details, synthesized
		FROM attendance
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, worker, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []generic.AttendanceRecord
	for rows.Next() {
		var (
			rec     generic.AttendanceRecord
			date    string
			clockIn sql.NullString
		)
		if err := rows.Scan(&rec.WorkerID, &date, &clockIn, &rec.IsLate, &rec.Classification, &rec.Details, &rec.Synthesized); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		rec.Date = parseDay(date)
		if clockIn.Valid {
			if t, err := time.Parse(time.RFC3339, clockIn.String); err == nil {
				rec.ClockIn = &t
			}
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SaveAttendance upserts the batch in one transaction.
func (s *Store) SaveAttendance(ctx context.Context, records []generic.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (worker_id, date, clock_in, is_late, classification, details, synthesized)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(worker_id, date) DO UPDATE SET clock_in = excluded.clock_in, is_late = excluded.is_late,
				classification = excluded.classification, details = excluded.details, synthesized = excluded.synthesized
		`, rec.WorkerID, rec.Date.String(), nullTime(rec.ClockIn), rec.IsLate, rec.Classification, rec.Details, rec.Synthesized)
		if err != nil {
			return fmt.Errorf("failed to save attendance for %s on %s: %w", rec.WorkerID, rec.Date, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, adj generic.PerformanceAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments (id, worker_id, date, delta, note, evaluator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, adj.ID, adj.WorkerID, adj.Date.String(), adj.Delta.String(), adj.Note, adj.Evaluator, adj.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("adjustment %s already exists", adj.ID)
		}
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAdjustment(ctx context.Context, id generic.AdjustmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM adjustments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete adjustment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrAdjustmentNotFound, id)
	}
	return nil
}

func (s *Store) LoadAdjustments(ctx context.Context, worker generic.WorkerID, from, to generic.TimePoint) ([]generic.PerformanceAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, date, delta, note, evaluator, created_at FROM adjustments
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY date, created_at, id
	`, worker, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var result []generic.PerformanceAdjustment
	for rows.Next() {
		var (
			adj              generic.PerformanceAdjustment
			date, delta, cAt string
		)
		if err := rows.Scan(&adj.ID, &adj.WorkerID, &date, &delta, &adj.Note, &adj.Evaluator, &cAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adj.Date = parseDay(date)
		adj.Delta = generic.MustParseDecimal(delta)
		adj.CreatedAt, _ = time.Parse(time.RFC3339, cAt)
		result = append(result, adj)
	}
	return result, rows.Err()
}

// =============================================================================
// LEAVE APPLICATIONS
// =============================================================================

func (s *Store) SaveLeaveApplication(ctx context.Context, la generic.LeaveApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_applications (id, worker_id, kind, start_date, end_date, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET worker_id = excluded.worker_id, kind = excluded.kind,
			start_date = excluded.start_date, end_date = excluded.end_date,
			status = excluded.status, reason = excluded.reason
	`, la.ID, la.WorkerID, la.Kind, la.Start.String(), la.End.String(), la.Status, la.Reason)
	if err != nil {
		return fmt.Errorf("failed to save leave application: %w", err)
	}
	return nil
}

func (s *Store) LoadLeaveApplication(ctx context.Context, id generic.LeaveID) (generic.LeaveApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, worker_id, kind, start_date, end_date, status, reason
		FROM leave_applications WHERE id = ?
	`, id)
	la, err := scanLeave(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.LeaveApplication{}, fmt.Errorf("%w: %s", generic.ErrLeaveNotFound, id)
	}
	return la, err
}

func (s *Store) LoadLeaveApplications(ctx context.Context) ([]generic.LeaveApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, kind, start_date, end_date, status, reason
		FROM leave_applications ORDER BY start_date, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave applications: %w", err)
	}
	defer rows.Close()

	var result []generic.LeaveApplication
	for rows.Next() {
		la, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, la)
	}
	return result, rows.Err()
}

func scanLeave(row scanner) (generic.LeaveApplication, error) {
	var (
		la         generic.LeaveApplication
		start, end string
	)
	if err := row.Scan(&la.ID, &la.WorkerID, &la.Kind, &start, &end, &la.Status, &la.Reason); err != nil {
		return la, err
	}
	la.Start = parseDay(start)
	la.End = parseDay(end)
	return la, nil
}

// =============================================================================
// WORKERS
// =============================================================================

func (s *Store) SaveWorker(ctx context.Context, w generic.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, w.ID, w.Name, now())
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

func (s *Store) LoadWorker(ctx context.Context, id generic.WorkerID) (generic.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w generic.Worker
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM workers WHERE id = ?`, id).Scan(&w.ID, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Worker{}, fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	if err != nil {
		return generic.Worker{}, fmt.Errorf("failed to load worker: %w", err)
	}
	return w, nil
}

func (s *Store) LoadWorkers(ctx context.Context) ([]generic.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var result []generic.Worker
	for rows.Next() {
		var w generic.Worker
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func parseDay(s string) generic.TimePoint {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return generic.TimePoint{}
	}
	return generic.DayOf(t)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
