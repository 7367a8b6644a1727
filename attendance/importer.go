package attendance

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/crew-engine/generic"
)

// Importer reconciles a batch of raw rows against what is already stored
// and writes the outcome in one atomic save.
type Importer struct {
	store      generic.AttendanceStore
	leaves     generic.LeaveSource
	reconciler *Reconciler
	logger     *zap.Logger
}

func NewImporter(store generic.AttendanceStore, leaves generic.LeaveSource, reconciler *Reconciler, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, leaves: leaves, reconciler: reconciler, logger: logger}
}

type ImportResult struct {
	Records     []generic.AttendanceRecord // records written
	Unchanged   int
	Dropped     int
	Diagnostics []*generic.RowError
}

// Import deduplicates the whole batch before writing. A re-import of the
// same file writes nothing.
func (im *Importer) Import(ctx context.Context, raw []RawRow) (*ImportResult, error) {
	rows, diags := ParseRows(raw)
	for _, d := range diags {
		im.logger.Warn("attendance row dropped",
			zap.Int("row", d.Row),
			zap.String("worker", string(d.WorkerID)),
			zap.String("field", d.Field),
			zap.String("value", d.Value),
			zap.String("reason", d.Reason))
	}

	leaves, err := im.leaves.LoadLeaveApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leave applications: %w", err)
	}
	reconciled := im.reconciler.Reconcile(rows, leaves)
	result := &ImportResult{Dropped: reconciled.Dropped, Diagnostics: diags}

	byWorker := make(map[generic.WorkerID][]generic.AttendanceRecord)
	for _, rec := range reconciled.Records {
		byWorker[rec.WorkerID] = append(byWorker[rec.WorkerID], rec)
	}
	workers := make([]generic.WorkerID, 0, len(byWorker))
	for w := range byWorker {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })

	var writes []generic.AttendanceRecord
	for _, w := range workers {
		incoming := byWorker[w]
		stored, err := im.store.LoadAttendance(ctx, w, incoming[0].Date, incoming[len(incoming)-1].Date)
		if err != nil {
			return nil, fmt.Errorf("load attendance for %s: %w", w, err)
		}
		existing := make(map[string]generic.AttendanceRecord, len(stored))
		for _, rec := range stored {
			existing[rec.Date.String()] = rec
		}
		for _, rec := range incoming {
			current, ok := existing[rec.Date.String()]
			switch {
			case !ok:
				writes = append(writes, rec)
			case Outranks(rec, current):
				writes = append(writes, rec)
			default:
				result.Unchanged++
			}
		}
	}

	if len(writes) > 0 {
		if err := im.store.SaveAttendance(ctx, writes); err != nil {
			return nil, fmt.Errorf("save attendance: %w", err)
		}
	}
	result.Records = writes
	im.logger.Info("attendance imported",
		zap.Int("rows", len(raw)),
		zap.Int("written", len(writes)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("diagnostics", len(diags)))
	return result, nil
}
