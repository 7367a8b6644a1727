/*
sweeper.go - Nightly attendance gap filling

PURPOSE:
  Imports only cover the rows a clock system exported. A worker with no
  row at all on a business day never reaches the importer, so the sweeper
  re-reconciles the previous business day for every registered worker and
  stores a synthesized no-clock-in record where nothing exists.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each pass targets the last business day before today
  - Idempotent: a day that already has a record is never touched
  - Approved leave turns a synthesized record into leave
  - Workers are processed concurrently through an errgroup

CONFIGURATION:
  - Interval: how often to sweep (default: 1 hour)
  - Enabled: whether the sweeper is active (default: true)

USAGE:
  sweeper := NewAttendanceSweeper(handler)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - attendance/reconciler.go: FillGaps
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/crew-engine/generic"
)

// lookbackDays bounds the history used to decide whether a worker is
// tracked at all; FillGaps synthesizes nothing for a worker without records.
const lookbackDays = 31

// AttendanceSweeper fills attendance gaps for the previous business day.
type AttendanceSweeper struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewAttendanceSweeper(h *Handler) *AttendanceSweeper {
	return &AttendanceSweeper{
		Handler:  h,
		Interval: time.Hour,
		Enabled:  true,
		stop:     make(chan struct{}),
	}
}

// Start begins sweeping in the background.
func (s *AttendanceSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.Handler.logger.Named("sweeper")
	if !s.Enabled {
		logger.Info("sweeper disabled, not starting")
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run(s.stop)
	logger.Info("sweeper started", zap.Duration("interval", s.Interval))
}

// Stop halts the sweeper and waits for an in-flight pass.
func (s *AttendanceSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.stop = make(chan struct{})
		s.Handler.logger.Named("sweeper").Info("sweeper stopped")
	}
}

func (s *AttendanceSweeper) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow sweeps the previous business day once, logging the outcome.
func (s *AttendanceSweeper) RunNow(ctx context.Context) {
	logger := s.Handler.logger.Named("sweeper")
	day := s.PreviousBusinessDay()
	n, err := s.Sweep(ctx, day)
	if err != nil {
		logger.Warn("sweep failed", zap.String("day", day.String()), zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("attendance gaps filled", zap.String("day", day.String()), zap.Int("records", n))
	}
}

// PreviousBusinessDay is the last business day strictly before today.
func (s *AttendanceSweeper) PreviousBusinessDay() generic.TimePoint {
	day := s.Handler.today().AddDays(-1)
	for !day.IsBusinessDay(s.Handler.reconcilerOpts.Calendar) {
		day = day.AddDays(-1)
	}
	return day
}

// Sweep stores synthesized records for day and returns how many were
// written. Running it twice for the same day writes nothing the second time.
func (s *AttendanceSweeper) Sweep(ctx context.Context, day generic.TimePoint) (int, error) {
	h := s.Handler
	workers, err := h.Store.LoadWorkers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load workers: %w", err)
	}
	leaves, err := h.Store.LoadLeaveApplications(ctx)
	if err != nil {
		return 0, fmt.Errorf("load leave applications: %w", err)
	}

	opts := h.reconcilerOpts
	opts.AsOf = day
	reconciler := h.reconcilerWith(opts)
	span := generic.Period{Start: day, End: day}

	found := make([][]generic.AttendanceRecord, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, w := range workers {
		g.Go(func() error {
			existing, err := h.Store.LoadAttendance(gctx, w.ID, day.AddDays(-lookbackDays), day)
			if err != nil {
				return fmt.Errorf("load attendance for %s: %w", w.ID, err)
			}
			found[i] = reconciler.FillGaps(w.ID, existing, leaves, span)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var synthesized []generic.AttendanceRecord
	for _, recs := range found {
		synthesized = append(synthesized, recs...)
	}
	if len(synthesized) == 0 {
		return 0, nil
	}
	if err := h.Store.SaveAttendance(ctx, synthesized); err != nil {
		return 0, fmt.Errorf("save attendance: %w", err)
	}
	return len(synthesized), nil
}
