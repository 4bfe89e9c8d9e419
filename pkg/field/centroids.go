package field

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Centroids holds one representative point per cell, in ascending cell
// order, expressed in the normalized frame.
type Centroids struct {
	// Matrix is NumCells × n. Rows of empty cells are NaN unless they were
	// interpolated.
	Matrix *mat.Dense
	// Empty marks cells without points.
	Empty []bool
	// Interpolated marks empty cells whose row was filled from neighbors.
	Interpolated []bool
}

// NonEmpty returns the rows of the non-empty cells only, in ascending cell
// order. This is the row order PropagateValues expects. It returns nil when
// every cell is empty.
func (c *Centroids) NonEmpty() *mat.Dense {
	var rows []int
	for i, e := range c.Empty {
		if !e {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, n := c.Matrix.Dims()
	out := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		out.SetRow(i, c.Matrix.RawRowView(r))
	}
	return out
}

// NumEmpty returns the number of cells without points.
func (c *Centroids) NumEmpty() int { return count(c.Empty) }

// NumInterpolated returns the number of cells filled by interpolation.
func (c *Centroids) NumInterpolated() int { return count(c.Interpolated) }

func count(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// CentroidsFromPoints computes the centroids of the current fitting. points
// must be the point set that was fitted.
func (rf *ReceptiveField) CentroidsFromPoints(points mat.Matrix, interpolate bool) (*Centroids, error) {
	f := rf.fitting.Load()
	if f == nil {
		return nil, ErrNotFitted
	}
	return rf.Centroids(f, points, interpolate)
}

// Centroids computes the mean normalized point of every cell of fitting f.
// With interpolate, every empty cell takes the mean of the centroids of its
// 3^n − 1 nearest non-empty cells, measured from the empty cell's center.
func (rf *ReceptiveField) Centroids(f *Fitting, points mat.Matrix, interpolate bool) (*Centroids, error) {
	if f == nil {
		return nil, ErrNotFitted
	}
	if points == nil {
		return nil, fmt.Errorf("%w: points are missing", ErrInvalidInput)
	}
	m, n := points.Dims()
	if n != rf.grid.Dims() {
		return nil, fmt.Errorf("%w: points have %d columns, grid has %d", ErrDimensionMismatch, n, rf.grid.Dims())
	}
	if m != f.M {
		return nil, fmt.Errorf("%w: got %d points, fitting has %d", ErrInvalidInput, m, f.M)
	}

	numCells := rf.grid.NumCells()
	c := &Centroids{
		Matrix:       mat.NewDense(numCells, n, nil),
		Empty:        make([]bool, numCells),
		Interpolated: make([]bool, numCells),
	}

	im := f.Matrix
	row := make([]float64, n)
	for i := 0; i < numCells; i++ {
		dst := c.Matrix.RawRowView(i)
		members := im.points[im.offsets[i]:im.offsets[i+1]]
		if len(members) == 0 {
			c.Empty[i] = true
			for k := range dst {
				dst[k] = math.NaN()
			}
			continue
		}
		for _, p := range members {
			mat.Row(row, p, points)
			normalizeRow(row, row, f.Center, rf.radii)
			floats.Add(dst, row)
		}
		floats.Scale(1/float64(len(members)), dst)
	}

	if interpolate {
		if err := rf.interpolate(c, im); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// interpolate fills the empty rows of c from the nearest non-empty centroids.
func (rf *ReceptiveField) interpolate(c *Centroids, im *IndexingMatrix) error {
	nonEmpty := im.nonEmpty
	if len(nonEmpty) == 0 || len(nonEmpty) == len(c.Empty) {
		return nil
	}

	support := make([][]float64, len(nonEmpty))
	for i, cell := range nonEmpty {
		support[i] = c.Matrix.RawRowView(cell)
	}
	idx, err := rf.neighbors()
	if err != nil {
		return fmt.Errorf("field: creating neighbor index: %w", err)
	}
	if err := idx.Build(support); err != nil {
		return fmt.Errorf("field: building neighbor index: %w", err)
	}

	k := min(rf.grid.NeighborCount(), len(support))
	center := make([]float64, rf.grid.Dims())
	for cell, empty := range c.Empty {
		if !empty {
			continue
		}
		rf.grid.CellCenter(cell, center)
		neighbors, err := idx.Search(center, k)
		if err != nil {
			return fmt.Errorf("field: searching neighbors of cell %d: %w", cell, err)
		}
		if len(neighbors) == 0 {
			continue
		}
		dst := c.Matrix.RawRowView(cell)
		for i := range dst {
			dst[i] = 0
		}
		for _, nb := range neighbors {
			floats.Add(dst, support[nb.Id])
		}
		floats.Scale(1/float64(len(neighbors)), dst)
		c.Interpolated[cell] = true
	}

	slog.Debug("[FIELD] Interpolated empty cells",
		"empty", c.NumEmpty(),
		"interpolated", c.NumInterpolated(),
		"neighbors", k,
		"index", idx.Info().Kind)
	return nil
}
