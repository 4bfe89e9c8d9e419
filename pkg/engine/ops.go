package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/core/types"
	"github.com/sanonone/rfield/pkg/field"
	"github.com/sanonone/rfield/pkg/metrics"
	"gonum.org/v1/gonum/mat"
)

// FieldConfig describes a receptive field to create.
type FieldConfig struct {
	CellSize      []float64  `json:"cell_size" yaml:"cell_size"`
	BoundingRadii []float64  `json:"bounding_radii" yaml:"bounding_radii"`
	Neighbors     knn.Config `json:"neighbors" yaml:"neighbors"`
}

// entry is one registered field. Its lock serializes fits with the reads
// that need the fitted points.
type entry struct {
	mu     sync.Mutex
	name   string
	cfg    FieldConfig
	rf     *field.ReceptiveField
	points *mat.Dense
}

func (e *Engine) newField(cfg FieldConfig) (*field.ReceptiveField, error) {
	factory, err := knn.NewFactory(cfg.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", field.ErrConfiguration, err)
	}
	return field.New(cfg.CellSize, cfg.BoundingRadii,
		field.WithNeighborIndex(factory),
		field.WithParallelThreshold(e.opts.ParallelThreshold))
}

// Create registers a new, unfitted receptive field under name.
func (e *Engine) Create(name string, cfg FieldConfig) (types.FieldInfo, error) {
	if strings.TrimSpace(name) == "" {
		return types.FieldInfo{}, fmt.Errorf("%w: field name is empty", field.ErrConfiguration)
	}
	if cfg.Neighbors.Kind == "" {
		cfg.Neighbors = knn.DefaultConfig()
	}
	rf, err := e.newField(cfg)
	if err != nil {
		return types.FieldInfo{}, err
	}

	cfg.CellSize = slices.Clone(cfg.CellSize)
	cfg.BoundingRadii = slices.Clone(cfg.BoundingRadii)
	ent := &entry{name: name, cfg: cfg, rf: rf}

	e.mu.Lock()
	if _, exists := e.fields.Get(&entry{name: name}); exists {
		e.mu.Unlock()
		return types.FieldInfo{}, fmt.Errorf("%w: '%s'", ErrFieldExists, name)
	}
	e.fields.Set(ent)
	n := e.fields.Len()
	e.mu.Unlock()

	e.markDirty()
	updateFieldsGauge(n)
	slog.Info("[ENGINE] Field created", "name", name, "cells", rf.Grid().NumCells(), "dims", rf.Grid().Dims())
	return ent.info(), nil
}

func (e *Engine) lookup(name string) (*entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.fields.Get(&entry{name: name})
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrFieldNotFound, name)
	}
	return ent, nil
}

// Get describes the field registered under name.
func (e *Engine) Get(name string) (types.FieldInfo, error) {
	ent, err := e.lookup(name)
	if err != nil {
		return types.FieldInfo{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.info(), nil
}

// Field returns the receptive field registered under name for direct use.
func (e *Engine) Field(name string) (*field.ReceptiveField, error) {
	ent, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	return ent.rf, nil
}

// Delete removes the field registered under name.
func (e *Engine) Delete(name string) error {
	e.mu.Lock()
	_, ok := e.fields.Delete(&entry{name: name})
	n := e.fields.Len()
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrFieldNotFound, name)
	}
	e.markDirty()
	updateFieldsGauge(n)
	slog.Info("[ENGINE] Field deleted", "name", name)
	return nil
}

// List describes every registered field in name order.
func (e *Engine) List() []types.FieldInfo {
	e.mu.RLock()
	entries := make([]*entry, 0, e.fields.Len())
	e.fields.Scan(func(ent *entry) bool {
		entries = append(entries, ent)
		return true
	})
	e.mu.RUnlock()

	out := make([]types.FieldInfo, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, ent.info())
		ent.mu.Unlock()
	}
	return out
}

// Fit fits the named field to points around center. A nil center selects
// the midpoint of the bounding box of points.
func (e *Engine) Fit(name string, points *mat.Dense, center []float64) (types.FieldInfo, error) {
	ent, err := e.lookup(name)
	if err != nil {
		return types.FieldInfo{}, err
	}
	if points == nil {
		return types.FieldInfo{}, fmt.Errorf("%w: points are missing", field.ErrInvalidInput)
	}
	if center == nil {
		if center, _, err = field.BoundingFrame(points); err != nil {
			return types.FieldInfo{}, err
		}
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	start := time.Now()
	f, err := ent.rf.Fit(points, center)
	if err != nil {
		return types.FieldInfo{}, err
	}
	ent.points = mat.DenseCopyOf(points)

	metrics.FitsTotal.WithLabelValues(name).Inc()
	metrics.FitDuration.Observe(time.Since(start).Seconds())
	metrics.PointsPerFit.Observe(float64(f.M))
	e.markDirty()
	return ent.info(), nil
}

// Centroids computes the centroids of the last fit of the named field and
// returns them with the generation of that fit.
func (e *Engine) Centroids(name string, interpolate bool) (*field.Centroids, uint64, error) {
	ent, err := e.lookup(name)
	if err != nil {
		return nil, 0, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	f := ent.rf.Fitting()
	if f == nil || ent.points == nil {
		return nil, 0, fmt.Errorf("'%s': %w", name, field.ErrNotFitted)
	}
	c, err := ent.rf.Centroids(f, ent.points, interpolate)
	if err != nil {
		return nil, 0, err
	}
	metrics.EmptyCellsTotal.WithLabelValues(name).Add(float64(c.NumEmpty()))
	metrics.InterpolatedCellsTotal.WithLabelValues(name).Add(float64(c.NumInterpolated()))
	return c, f.Generation, nil
}

// Propagate maps one value row per non-empty cell back onto the points of
// the last fit. A non-zero generation must match that fit, otherwise
// ErrStaleFit is returned.
func (e *Engine) Propagate(name string, generation uint64, values mat.Matrix, safe bool) (*mat.Dense, error) {
	ent, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	f := ent.rf.Fitting()
	ent.mu.Unlock()

	if f == nil {
		metrics.PropagationErrorsTotal.WithLabelValues(name, "not_fitted").Inc()
		return nil, fmt.Errorf("'%s': %w", name, field.ErrNotFitted)
	}
	if generation != 0 && generation != f.Generation {
		metrics.PropagationErrorsTotal.WithLabelValues(name, "stale").Inc()
		return nil, fmt.Errorf("%w: '%s' is at generation %d, got %d", ErrStaleFit, name, f.Generation, generation)
	}
	out, err := f.PropagateValues(values, safe)
	if err != nil {
		metrics.PropagationErrorsTotal.WithLabelValues(name, "coverage").Inc()
		return nil, err
	}
	return out, nil
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the engine.
func IsClientError(err error) bool {
	return errors.Is(err, field.ErrConfiguration) ||
		errors.Is(err, field.ErrInvalidInput) ||
		errors.Is(err, field.ErrPropagation)
}

func (ent *entry) info() types.FieldInfo {
	grid := ent.rf.Grid()
	info := types.FieldInfo{
		Name:          ent.name,
		CellSize:      slices.Clone(ent.cfg.CellSize),
		BoundingRadii: slices.Clone(ent.cfg.BoundingRadii),
		NumCells:      grid.NumCells(),
		NeighborIndex: string(ent.cfg.Neighbors.Kind),
	}
	if f := ent.rf.Fitting(); f != nil {
		info.Fitted = true
		info.Generation = f.Generation
		info.Points = f.M
		info.NonEmptyCells = f.Matrix.NumNonEmpty()
		info.MaxOccupancy = f.Matrix.MaxOccupancy()
	}
	return info
}
