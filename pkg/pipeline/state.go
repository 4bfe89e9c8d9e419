package pipeline

import (
	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

// State is what the stages of one case share: the point cloud being
// processed and the intermediate results of the receptive field.
type State struct {
	Cloud     *PointCloud
	Field     *field.ReceptiveField
	Fitting   *field.Fitting
	Centroids *field.Centroids
	// Values holds one model output row per non-empty cell.
	Values *mat.Dense
	// Predictions holds the propagated values, one row per point.
	Predictions *mat.Dense

	// outPrefix is set when the case output is a "*" prefix.
	outPrefix    string
	valueColumns []string
}

// Dims returns the dimensionality of the fitted field, or 0.
func (s *State) Dims() int {
	if s.Field == nil {
		return 0
	}
	return s.Field.Grid().Dims()
}
