package engine

import (
	"fmt"
	"math"

	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

// DenseFromRows converts rows, as decoded from JSON, into a matrix. Rows must
// be non-empty and of equal length.
func DenseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", field.ErrInvalidInput)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty rows", field.ErrInvalidInput)
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", field.ErrInvalidInput, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// RowsFromDense converts a matrix into rows for JSON. JSON has no NaN, so a
// row holding one becomes nil.
func RowsFromDense(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		row := m.RawRowView(i)
		if !hasNaN(row) {
			out[i] = append([]float64(nil), row...)
		}
	}
	return out
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
