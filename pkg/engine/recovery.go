package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/field"
	"github.com/sanonone/rfield/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

// SaveSnapshot writes every field, with its fitted state and points, to the
// snapshot file. The previous snapshot is replaced atomically.
func (e *Engine) SaveSnapshot() error {
	if e.snapPath == "" {
		return fmt.Errorf("engine has no data directory")
	}

	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	id := uuid.NewString()
	start := time.Now()
	dirty := e.dirtyCounter.Load()

	e.mu.RLock()
	entries := make([]*entry, 0, e.fields.Len())
	e.fields.Scan(func(ent *entry) bool {
		entries = append(entries, ent)
		return true
	})
	e.mu.RUnlock()

	sw, err := persistence.NewSnapshotWriter(e.snapPath)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		rec, err := ent.record()
		if err != nil {
			sw.Abort()
			return err
		}
		if err := sw.WriteField(rec); err != nil {
			sw.Abort()
			return fmt.Errorf("writing field '%s': %w", ent.name, err)
		}
	}
	if err := sw.Commit(); err != nil {
		return err
	}

	e.dirtyCounter.Add(-dirty)
	e.lastSaveTime = time.Now()
	slog.Info("[ENGINE] Snapshot saved", "id", id, "fields", len(entries), "path", e.snapPath, "duration", time.Since(start))
	return nil
}

func (ent *entry) record() (*persistence.FieldRecord, error) {
	ent.mu.Lock()
	defer ent.mu.Unlock()

	rec := &persistence.FieldRecord{
		Name:          ent.name,
		CellSize:      ent.cfg.CellSize,
		BoundingRadii: ent.cfg.BoundingRadii,
		Neighbors:     ent.cfg.Neighbors,
		SavedAt:       time.Now(),
	}
	if ent.rf.Fitting() == nil {
		return rec, nil
	}
	state, err := ent.rf.State()
	if err != nil {
		return nil, err
	}
	rec.State = state
	if ent.points != nil {
		// Fitted points are a private contiguous copy, never mutated.
		rec.Points = ent.points.RawMatrix().Data
	}
	return rec, nil
}

// loadSnapshot restores every field of the snapshot file. Fields that fail
// to restore are logged and skipped.
func (e *Engine) loadSnapshot() error {
	records, err := persistence.ReadSnapshot(e.snapPath)
	if err != nil {
		return err
	}

	for _, rec := range records {
		ent, err := e.restoreEntry(rec)
		if err != nil {
			slog.Warn("[ENGINE] Skipping field from snapshot", "name", rec.Name, "error", err)
			continue
		}
		e.fields.Set(ent)
	}
	updateFieldsGauge(e.fields.Len())
	return nil
}

func (e *Engine) restoreEntry(rec *persistence.FieldRecord) (*entry, error) {
	cfg := FieldConfig{CellSize: rec.CellSize, BoundingRadii: rec.BoundingRadii, Neighbors: rec.Neighbors}
	ent := &entry{name: rec.Name, cfg: cfg}

	if rec.State == nil {
		rf, err := e.newField(cfg)
		if err != nil {
			return nil, err
		}
		ent.rf = rf
		return ent, nil
	}

	factory, err := knn.NewFactory(cfg.Neighbors)
	if err != nil {
		return nil, err
	}
	rf, err := field.Restore(rec.State,
		field.WithNeighborIndex(factory),
		field.WithParallelThreshold(e.opts.ParallelThreshold))
	if err != nil {
		return nil, err
	}
	ent.rf = rf

	n := len(rec.CellSize)
	if m := rf.Fitting().M; len(rec.Points) == m*n {
		ent.points = mat.NewDense(m, n, rec.Points)
	}
	return ent, nil
}
