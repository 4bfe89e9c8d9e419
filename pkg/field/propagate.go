package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PropagateValues propagates values through the current fitting. See
// (*Fitting).PropagateValues.
func (rf *ReceptiveField) PropagateValues(values mat.Matrix, safe bool) (*mat.Dense, error) {
	f := rf.fitting.Load()
	if f == nil {
		return nil, ErrNotFitted
	}
	return f.PropagateValues(values, safe)
}

// PropagateScalars propagates scalar values through the current fitting. See
// (*Fitting).PropagateScalars.
func (rf *ReceptiveField) PropagateScalars(values []float64, safe bool) ([]float64, error) {
	f := rf.fitting.Load()
	if f == nil {
		return nil, ErrNotFitted
	}
	return f.PropagateScalars(values, safe)
}

// PropagateValues maps one value per non-empty cell back onto the fitted
// points. Row i of values belongs to the i-th non-empty cell in ascending
// cell order; row j of the M × d result is the value of the cell holding
// point j.
//
// More rows than non-empty cells is always an error. With safe, fewer rows
// is an error too, as is any NaN in the result. Without safe, points of
// uncovered cells are left NaN.
func (f *Fitting) PropagateValues(values mat.Matrix, safe bool) (*mat.Dense, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: values are missing", ErrPropagation)
	}
	r, d := values.Dims()
	if err := f.checkCoverage(r, safe); err != nil {
		return nil, err
	}

	out := mat.NewDense(f.M, d, nil)
	nanRow := make([]float64, d)
	for k := range nanRow {
		nanRow[k] = math.NaN()
	}
	for j := 0; j < f.M; j++ {
		out.SetRow(j, nanRow)
	}

	im := f.Matrix
	v := make([]float64, d)
	for i := 0; i < r; i++ {
		mat.Row(v, i, values)
		cell := im.nonEmpty[i]
		for _, p := range im.points[im.offsets[cell]:im.offsets[cell+1]] {
			out.SetRow(p, v)
		}
	}

	if safe {
		for j := 0; j < f.M; j++ {
			if hasNaN(out.RawRowView(j)) {
				return nil, fmt.Errorf("%w: NaN propagated to point %d", ErrPropagation, j)
			}
		}
	}
	return out, nil
}

// PropagateScalars is PropagateValues for one scalar per cell.
func (f *Fitting) PropagateScalars(values []float64, safe bool) ([]float64, error) {
	if err := f.checkCoverage(len(values), safe); err != nil {
		return nil, err
	}

	out := make([]float64, f.M)
	for j := range out {
		out[j] = math.NaN()
	}
	im := f.Matrix
	for i, v := range values {
		cell := im.nonEmpty[i]
		for _, p := range im.points[im.offsets[cell]:im.offsets[cell+1]] {
			out[p] = v
		}
	}

	if safe {
		for j, v := range out {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: NaN propagated to point %d", ErrPropagation, j)
			}
		}
	}
	return out, nil
}

func (f *Fitting) checkCoverage(rows int, safe bool) error {
	want := f.Matrix.NumNonEmpty()
	switch {
	case rows > want:
		return fmt.Errorf("%w: got %d values for %d non-empty cells", ErrPropagation, rows, want)
	case rows < want && safe:
		return fmt.Errorf("%w: got %d values for %d non-empty cells", ErrPropagation, rows, want)
	}
	return nil
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
