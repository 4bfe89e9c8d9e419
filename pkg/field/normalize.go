package field

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Normalize centers X on center and scales every axis by its bounding radius,
// mapping the neighborhood into the frame [-1, 1]^n: X'_j = (X_j − center)/radii.
func Normalize(X mat.Matrix, center, radii []float64) (*mat.Dense, error) {
	r, c, err := checkFrame(X, center, radii)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		normalizeRow(row, row, center, radii)
		out.SetRow(i, row)
	}
	return out, nil
}

// Denormalize is the inverse of Normalize: X = radii·X' + center.
func Denormalize(X mat.Matrix, center, radii []float64) (*mat.Dense, error) {
	r, c, err := checkFrame(X, center, radii)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		for k := range row {
			row[k] = radii[k]*row[k] + center[k]
		}
		out.SetRow(i, row)
	}
	return out, nil
}

func normalizeRow(dst, src, center, radii []float64) {
	for k := range src {
		dst[k] = (src[k] - center[k]) / radii[k]
	}
}

func checkFrame(X mat.Matrix, center, radii []float64) (int, int, error) {
	if X == nil {
		return 0, 0, fmt.Errorf("%w: points are missing", ErrInvalidInput)
	}
	r, c := X.Dims()
	if r == 0 {
		return 0, 0, fmt.Errorf("%w: no points", ErrInvalidInput)
	}
	if len(center) != c || len(radii) != c {
		return 0, 0, fmt.Errorf("%w: points have %d columns, center %d and radii %d", ErrDimensionMismatch, c, len(center), len(radii))
	}
	return r, c, nil
}

// BoundingFrame returns the center and per-axis radii of the axis-aligned
// bounding box of X: the midpoint and half the extent of every axis. Axes
// with no extent get a radius of 1.
func BoundingFrame(X mat.Matrix) (center, radii []float64, err error) {
	if X == nil {
		return nil, nil, fmt.Errorf("%w: points are missing", ErrInvalidInput)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, nil, fmt.Errorf("%w: no points", ErrInvalidInput)
	}
	lo := mat.Row(nil, 0, X)
	hi := slices.Clone(lo)
	row := make([]float64, c)
	for i := 1; i < r; i++ {
		mat.Row(row, i, X)
		for k, v := range row {
			lo[k] = min(lo[k], v)
			hi[k] = max(hi[k], v)
		}
	}
	center = make([]float64, c)
	radii = make([]float64, c)
	for k := range center {
		center[k] = (lo[k] + hi[k]) / 2
		radii[k] = (hi[k] - lo[k]) / 2
		if radii[k] == 0 {
			radii[k] = 1
		}
	}
	return center, radii, nil
}
