// Package field implements receptive fields: fixed-size grid representations
// of irregular point clouds.
//
// A ReceptiveField partitions the neighborhood of a center point into the
// cells of a Grid. Fit assigns every point to a cell, CentroidsFromPoints
// reduces each cell to a single representative point (optionally filling
// empty cells from their nearest populated neighbors) and PropagateValues
// maps per-cell values, typically a model output, back onto the original
// points.
package field

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/rfield/pkg/core/knn"
	"gonum.org/v1/gonum/mat"
)

// DefaultParallelThreshold is the number of points above which cell indices
// are computed by several goroutines.
const DefaultParallelThreshold = 1 << 16

// generations numbers fittings process-wide so a fitting can be told apart
// from any other, including those of other fields.
var generations atomic.Uint64

// Fitting is the immutable result of one fit: the indexing matrix, the center
// the points were normalized around and the number of points.
type Fitting struct {
	Matrix     *IndexingMatrix
	Center     []float64
	M          int
	Generation uint64
	FittedAt   time.Time
}

func newFitting(im *IndexingMatrix, center []float64) *Fitting {
	return &Fitting{
		Matrix:     im,
		Center:     slices.Clone(center),
		M:          im.NumPoints(),
		Generation: generations.Add(1),
		FittedAt:   time.Now(),
	}
}

// Option configures a ReceptiveField.
type Option func(*ReceptiveField)

// WithNeighborIndex sets the neighbor index used to interpolate empty cells.
// The default is an exact kd-tree.
func WithNeighborIndex(f knn.Factory) Option {
	return func(rf *ReceptiveField) {
		if f != nil {
			rf.neighbors = f
		}
	}
}

// WithParallelThreshold sets the point count above which Fit computes cell
// indices concurrently. Zero or less disables parallelism.
func WithParallelThreshold(n int) Option {
	return func(rf *ReceptiveField) {
		rf.parallelThreshold = n
	}
}

// ReceptiveField is a grid over the neighborhood of a center point. The grid
// and radii are fixed at construction; every Fit replaces the previous
// Fitting as a whole.
//
// Readers always observe one complete Fitting, but concurrent fits on the
// same field race on which one ends up current. Callers fitting disjoint
// clouds in parallel should use one field each.
type ReceptiveField struct {
	grid              *Grid
	radii             []float64
	neighbors         knn.Factory
	parallelThreshold int

	fitting atomic.Pointer[Fitting]
}

// New creates a receptive field with the given cell size and bounding radii.
// Both are required and must have the same length.
func New(cellSize, radii []float64, opts ...Option) (*ReceptiveField, error) {
	g, err := NewGrid(cellSize)
	if err != nil {
		return nil, err
	}
	if len(radii) == 0 {
		return nil, fmt.Errorf("%w: bounding radii are required", ErrConfiguration)
	}
	if len(radii) != g.Dims() {
		return nil, fmt.Errorf("%w: %d bounding radii for a %d-dimensional grid", ErrConfiguration, len(radii), g.Dims())
	}
	for i, r := range radii {
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return nil, fmt.Errorf("%w: bounding radius %v on axis %d must be positive", ErrConfiguration, r, i)
		}
	}

	rf := &ReceptiveField{
		grid:              g,
		radii:             slices.Clone(radii),
		neighbors:         func() (knn.Index, error) { return knn.NewKDTree(), nil },
		parallelThreshold: DefaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf, nil
}

// Grid returns the grid geometry.
func (rf *ReceptiveField) Grid() *Grid { return rf.grid }

// BoundingRadii returns a copy of the per-axis radii.
func (rf *ReceptiveField) BoundingRadii() []float64 { return slices.Clone(rf.radii) }

// Fitting returns the current fitting, or nil before the first Fit.
func (rf *ReceptiveField) Fitting() *Fitting { return rf.fitting.Load() }

// Fit assigns every row of points to a cell of the grid centered at center
// and makes the result the current fitting. On error the previous fitting is
// left in place.
func (rf *ReceptiveField) Fit(points mat.Matrix, center []float64) (*Fitting, error) {
	if center == nil {
		return nil, fmt.Errorf("%w: center point is missing", ErrInvalidInput)
	}
	if points == nil {
		return nil, fmt.Errorf("%w: points are missing", ErrInvalidInput)
	}
	m, n := points.Dims()
	if n != rf.grid.Dims() || len(center) != n {
		return nil, fmt.Errorf("%w: points have %d columns and center %d, grid has %d", ErrDimensionMismatch, n, len(center), rf.grid.Dims())
	}
	if m == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidInput)
	}
	if !allFinite(center) {
		return nil, fmt.Errorf("%w: center has non-finite coordinates", ErrInvalidInput)
	}

	start := time.Now()
	cells, err := rf.cellIndices(points, center)
	if err != nil {
		return nil, err
	}
	numCells := rf.grid.NumCells()
	for j, c := range cells {
		if c >= numCells {
			return nil, fmt.Errorf("%w: point %d maps to cell %d, grid has %d cells", ErrInvalidInput, j, c, numCells)
		}
	}
	f := newFitting(buildIndexingMatrix(rf.grid.NumCells(), cells), center)
	rf.fitting.Store(f)

	slog.Debug("[FIELD] Fitted receptive field",
		"points", m,
		"cells", rf.grid.NumCells(),
		"non_empty", f.Matrix.NumNonEmpty(),
		"max_occupancy", f.Matrix.MaxOccupancy(),
		"generation", f.Generation,
		"duration", time.Since(start))
	return f, nil
}

// cellIndices normalizes every point around center and returns its flat cell
// index. Large inputs are split into contiguous chunks handled by separate
// goroutines; the result does not depend on the split.
func (rf *ReceptiveField) cellIndices(points mat.Matrix, center []float64) ([]int, error) {
	m, _ := points.Dims()
	cells := make([]int, m)

	workers := 1
	if rf.parallelThreshold > 0 && m > rf.parallelThreshold {
		workers = min(runtime.GOMAXPROCS(0), (m+rf.parallelThreshold-1)/rf.parallelThreshold)
	}
	chunk := (m + workers - 1) / workers

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, m)
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			errs[w] = rf.indexRange(points, center, cells, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return cells, nil
}

func (rf *ReceptiveField) indexRange(points mat.Matrix, center []float64, cells []int, lo, hi int) error {
	row := make([]float64, rf.grid.Dims())
	for j := lo; j < hi; j++ {
		mat.Row(row, j, points)
		if !allFinite(row) {
			return fmt.Errorf("%w: point %d has non-finite coordinates", ErrInvalidInput, j)
		}
		normalizeRow(row, row, center, rf.radii)
		cells[j] = rf.grid.CellOf(row)
	}
	return nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
