package field

import (
	"slices"
)

// Shadow marks an unused slot in the dense rendering of an IndexingMatrix. It
// never denotes a point.
const Shadow = -1

// IndexingMatrix maps every cell of a grid to the ordered list of the points
// it contains. The ragged mapping is stored compressed: the points of cell i
// are points[offsets[i]:offsets[i+1]], in original point order.
type IndexingMatrix struct {
	offsets      []int
	points       []int
	nonEmpty     []int
	maxOccupancy int
}

// buildIndexingMatrix groups point j into cell cells[j] with a counting pass
// followed by a stable fill.
func buildIndexingMatrix(numCells int, cells []int) *IndexingMatrix {
	im := &IndexingMatrix{
		offsets: make([]int, numCells+1),
		points:  make([]int, len(cells)),
	}

	for _, c := range cells {
		im.offsets[c+1]++
	}
	for i := 0; i < numCells; i++ {
		occ := im.offsets[i+1]
		if occ > 0 {
			im.nonEmpty = append(im.nonEmpty, i)
		}
		if occ > im.maxOccupancy {
			im.maxOccupancy = occ
		}
		im.offsets[i+1] += im.offsets[i]
	}

	next := slices.Clone(im.offsets[:numCells])
	for j, c := range cells {
		im.points[next[c]] = j
		next[c]++
	}
	return im
}

// NumCells returns the number of cells the matrix spans.
func (im *IndexingMatrix) NumCells() int { return len(im.offsets) - 1 }

// NumPoints returns the number of points indexed.
func (im *IndexingMatrix) NumPoints() int { return len(im.points) }

// Cell returns the indices of the points in cell i, in original order.
func (im *IndexingMatrix) Cell(i int) []int {
	return slices.Clone(im.points[im.offsets[i]:im.offsets[i+1]])
}

// Occupancy returns the number of points in cell i.
func (im *IndexingMatrix) Occupancy(i int) int {
	return im.offsets[i+1] - im.offsets[i]
}

// MaxOccupancy returns the largest number of points sharing a cell.
func (im *IndexingMatrix) MaxOccupancy() int { return im.maxOccupancy }

// NonEmptyCells returns the indices of the cells with at least one point, in
// ascending order.
func (im *IndexingMatrix) NonEmptyCells() []int { return slices.Clone(im.nonEmpty) }

// NumNonEmpty returns the number of cells with at least one point.
func (im *IndexingMatrix) NumNonEmpty() int { return len(im.nonEmpty) }

// PointCells returns, for every point, the index of its cell.
func (im *IndexingMatrix) PointCells() []int {
	out := make([]int, len(im.points))
	for _, c := range im.nonEmpty {
		for _, p := range im.points[im.offsets[c]:im.offsets[c+1]] {
			out[p] = c
		}
	}
	return out
}

// Dense renders the matrix as a NumCells × MaxOccupancy table with unused
// slots set to Shadow.
func (im *IndexingMatrix) Dense() [][]int {
	n := im.NumCells()
	table := make([][]int, n)
	backing := make([]int, n*im.maxOccupancy)
	for i := range backing {
		backing[i] = Shadow
	}
	for i := 0; i < n; i++ {
		table[i] = backing[i*im.maxOccupancy : (i+1)*im.maxOccupancy]
		copy(table[i], im.points[im.offsets[i]:im.offsets[i+1]])
	}
	return table
}
