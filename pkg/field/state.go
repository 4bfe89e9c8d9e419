package field

import (
	"fmt"
	"slices"
)

// State is the serializable form of a fitted receptive field. It carries
// everything needed to propagate values again without refitting.
type State struct {
	CellSize      []float64
	BoundingRadii []float64
	Center        []float64
	Offsets       []int
	Points        []int
}

// State captures the configuration and current fitting of rf.
func (rf *ReceptiveField) State() (*State, error) {
	f := rf.fitting.Load()
	if f == nil {
		return nil, ErrNotFitted
	}
	return &State{
		CellSize:      rf.grid.CellSize(),
		BoundingRadii: rf.BoundingRadii(),
		Center:        slices.Clone(f.Center),
		Offsets:       slices.Clone(f.Matrix.offsets),
		Points:        slices.Clone(f.Matrix.points),
	}, nil
}

// Restore rebuilds a fitted receptive field from s. The restored fitting gets
// a new generation.
func Restore(s *State, opts ...Option) (*ReceptiveField, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: state is missing", ErrInvalidInput)
	}
	rf, err := New(s.CellSize, s.BoundingRadii, opts...)
	if err != nil {
		return nil, err
	}
	if len(s.Center) != rf.grid.Dims() || !allFinite(s.Center) {
		return nil, fmt.Errorf("%w: state center does not fit a %d-dimensional grid", ErrInvalidInput, rf.grid.Dims())
	}
	im, err := indexingFromCSR(rf.grid.NumCells(), s.Offsets, s.Points)
	if err != nil {
		return nil, err
	}
	rf.fitting.Store(newFitting(im, s.Center))
	return rf, nil
}

// indexingFromCSR validates a compressed mapping and rebuilds the derived
// fields of an IndexingMatrix.
func indexingFromCSR(numCells int, offsets, points []int) (*IndexingMatrix, error) {
	if len(offsets) != numCells+1 || offsets[0] != 0 || offsets[numCells] != len(points) || len(points) == 0 {
		return nil, fmt.Errorf("%w: malformed indexing offsets", ErrInvalidInput)
	}
	seen := make([]bool, len(points))
	for _, p := range points {
		if p < 0 || p >= len(points) || seen[p] {
			return nil, fmt.Errorf("%w: indexing is not a permutation of the points", ErrInvalidInput)
		}
		seen[p] = true
	}

	im := &IndexingMatrix{
		offsets: slices.Clone(offsets),
		points:  slices.Clone(points),
	}
	for i := 0; i < numCells; i++ {
		occ := offsets[i+1] - offsets[i]
		if occ < 0 {
			return nil, fmt.Errorf("%w: malformed indexing offsets", ErrInvalidInput)
		}
		if occ > 0 {
			im.nonEmpty = append(im.nonEmpty, i)
		}
		im.maxOccupancy = max(im.maxOccupancy, occ)
	}
	return im, nil
}
