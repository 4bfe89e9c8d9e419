package field

import (
	"fmt"
	"math"
	"slices"
)

// boundaryEpsilon absorbs round-off for points lying exactly on a cell
// boundary, so 0.5/0.25 style divisions land in the upper cell.
const boundaryEpsilon = 1e-15

// MaxCells bounds the number of cells a grid may have.
const MaxCells = 1 << 28

// Grid is the geometry of a receptive field: a partition of the normalized
// frame [-1, 1]^n into axis-aligned cells of CellSize (in units of the
// per-axis radius). A Grid is immutable.
type Grid struct {
	cellSize     []float64
	factors      []int
	cellsPerAxis []int
	axisMax      []int
	numCells     int
}

// NewGrid builds the grid for cellSize. Every component must be in (0, 2]:
// 2 yields a single partition along the axis, 1 yields two.
//
// When 2/s is not an integer on some axis, the flattened index of cells near
// the upper corner can reach NumCells or beyond. Such grids are valid; Fit
// rejects the points that land there.
func NewGrid(cellSize []float64) (*Grid, error) {
	n := len(cellSize)
	if n == 0 {
		return nil, fmt.Errorf("%w: cell size is empty", ErrConfiguration)
	}

	g := &Grid{
		cellSize:     slices.Clone(cellSize),
		factors:      make([]int, n),
		cellsPerAxis: make([]int, n),
		axisMax:      make([]int, n),
	}

	prod := 1.0
	for i, s := range cellSize {
		if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 || s > 2 {
			return nil, fmt.Errorf("%w: cell size %v on axis %d is outside (0, 2]", ErrConfiguration, s, i)
		}
		prod *= s / 2
		g.cellsPerAxis[i] = int(math.Ceil(2 / s))
		g.axisMax[i] = int(math.Floor(2/s)) - 1
	}

	cells := math.Floor(1/prod + 0.5) // round half up
	if cells > MaxCells {
		return nil, fmt.Errorf("%w: grid would have %.0f cells, limit is %d", ErrConfiguration, cells, MaxCells)
	}
	g.numCells = int(cells)

	g.factors[0] = 1
	for i := 1; i < n; i++ {
		f := g.factors[i-1] * g.cellsPerAxis[i-1]
		if f > MaxCells {
			return nil, fmt.Errorf("%w: dimensional factor of axis %d overflows", ErrConfiguration, i)
		}
		g.factors[i] = f
	}

	return g, nil
}

// Dims returns the dimensionality n of the grid.
func (g *Grid) Dims() int { return len(g.cellSize) }

// NumCells returns the number of cells, round(1/∏(s_i/2)) with ties rounded up.
func (g *Grid) NumCells() int { return g.numCells }

// CellSize returns a copy of the per-axis cell size.
func (g *Grid) CellSize() []float64 { return slices.Clone(g.cellSize) }

// Factors returns the dimensional factors: f_1 = 1, f_i = f_{i-1}·ceil(2/s_{i-1}).
func (g *Grid) Factors() []int { return slices.Clone(g.factors) }

// CellsPerAxis returns ceil(2/s_i) for every axis.
func (g *Grid) CellsPerAxis() []int { return slices.Clone(g.cellsPerAxis) }

// Flatten encodes per-axis cell coordinates into a flat cell index.
func (g *Grid) Flatten(coords []int) int {
	flat := 0
	for k, c := range coords {
		flat += c * g.factors[k]
	}
	return flat
}

// Unflatten decodes a flat cell index into per-axis cell coordinates. It is
// the inverse of Flatten for coordinates inside the grid.
func (g *Grid) Unflatten(flat int) []int {
	coords := make([]int, len(g.factors))
	for k, f := range g.factors {
		coords[k] = (flat / f) % g.cellsPerAxis[k]
	}
	return coords
}

// CellOf returns the flat index of the cell containing the normalized point
// x. Each axis contribution is clipped to the last valid cell of the axis
// before summing, which keeps the maximum vertex of the frame inside the grid.
func (g *Grid) CellOf(x []float64) int {
	flat := 0
	for k, v := range x {
		c := math.Floor((v+1)/g.cellSize[k] + boundaryEpsilon)
		switch {
		case c < 0:
			c = 0
		case c > float64(g.axisMax[k]):
			c = float64(g.axisMax[k])
		}
		flat += int(c) * g.factors[k]
	}
	return flat
}

// CellCenter writes the normalized-frame center of cell flat into dst, which
// is allocated when nil, and returns it.
func (g *Grid) CellCenter(flat int, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(g.cellSize))
	}
	for k, c := range g.Unflatten(flat) {
		dst[k] = -1 + (float64(c)+0.5)*g.cellSize[k]
	}
	return dst
}

// NeighborCount returns 3^n − 1, the number of cells adjacent to an interior
// cell of an n-dimensional grid.
func (g *Grid) NeighborCount() int {
	k := 1
	for range g.cellSize {
		k *= 3
		if k > MaxCells {
			return MaxCells
		}
	}
	return k - 1
}
