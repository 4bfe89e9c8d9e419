package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

// Model maps the representative points of the non-empty cells to one output
// row per cell. It is the boundary with whatever consumes the fixed-size
// representation, typically a trained network.
type Model interface {
	// Predict receives the fitted field and its centroids and returns one
	// row per non-empty cell in ascending cell order.
	Predict(ctx context.Context, rf *field.ReceptiveField, c *field.Centroids) (*mat.Dense, error)
	// Outputs names the columns of the prediction.
	Outputs(dims int) []string
}

// ModelFunc builds a Model.
type ModelFunc func() Model

var (
	modelsMu sync.RWMutex
	models   = map[string]ModelFunc{
		"cell_index": func() Model { return cellIndexModel{} },
		"centroid":   func() Model { return centroidModel{} },
	}
)

// RegisterModel makes a model available to pipeline specs under name.
func RegisterModel(name string, fn ModelFunc) {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	models[name] = fn
}

// NewModel instantiates the model registered under name.
func NewModel(name string) (Model, error) {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	fn, ok := models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model '%s' (available: %v)", ErrPipeline, name, modelNames())
	}
	return fn(), nil
}

func modelNames() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cellIndexModel predicts the flat index of every cell.
type cellIndexModel struct{}

func (cellIndexModel) Predict(_ context.Context, _ *field.ReceptiveField, c *field.Centroids) (*mat.Dense, error) {
	var idx []float64
	for i, empty := range c.Empty {
		if !empty {
			idx = append(idx, float64(i))
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no populated cells", ErrPipeline)
	}
	return mat.NewDense(len(idx), 1, idx), nil
}

func (cellIndexModel) Outputs(int) []string { return []string{"cell_index"} }

// centroidModel predicts the centroid of every cell in the original frame.
type centroidModel struct{}

func (centroidModel) Predict(_ context.Context, rf *field.ReceptiveField, c *field.Centroids) (*mat.Dense, error) {
	f := rf.Fitting()
	if f == nil {
		return nil, field.ErrNotFitted
	}
	ne := c.NonEmpty()
	if ne == nil {
		return nil, fmt.Errorf("%w: no populated cells", ErrPipeline)
	}
	return field.Denormalize(ne, f.Center, rf.BoundingRadii())
}

func (centroidModel) Outputs(dims int) []string {
	names := make([]string, dims)
	for i := range names {
		names[i] = fmt.Sprintf("centroid_%d", i)
	}
	return names
}
