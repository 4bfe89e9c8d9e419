package field

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a grid or a receptive field cannot be
	// built from the given cell sizes and bounding radii.
	ErrConfiguration = errors.New("field: invalid configuration")
	// ErrInvalidInput is returned when points or a center are missing or
	// malformed.
	ErrInvalidInput = errors.New("field: invalid input")
	// ErrDimensionMismatch is an ErrInvalidInput raised when a point set, a
	// center or a radii vector does not have the grid dimensionality.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrInvalidInput)
	// ErrPropagation is returned when cell values cannot be propagated back
	// to the points of a fit.
	ErrPropagation = errors.New("field: propagation failed")
	// ErrNotFitted is returned by operations that need a fit before one was
	// made. It is also an ErrPropagation.
	ErrNotFitted = fmt.Errorf("%w: receptive field has not been fitted", ErrPropagation)
)
