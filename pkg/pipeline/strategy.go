package pipeline

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PredictiveStrategy turns a pipeline into a predictor: given a cloud it
// returns one output row per point.
type PredictiveStrategy interface {
	Predict(ctx context.Context, p *Pipeline, cloud *PointCloud) (*mat.Dense, error)
}

// FieldStrategy fits a receptive field on the cloud, runs the model on the
// centroids and propagates the result back to the points.
type FieldStrategy struct{}

// Predict runs the stages of p on a copy of cloud and returns the propagated
// values.
func (FieldStrategy) Predict(ctx context.Context, p *Pipeline, cloud *PointCloud) (*mat.Dense, error) {
	s, err := p.RunCloud(ctx, cloud)
	if err != nil {
		return nil, err
	}
	if s.Predictions == nil {
		return nil, fmt.Errorf("%w: pipeline produced no predictions", ErrPipeline)
	}
	return s.Predictions, nil
}

// PredictivePipeline pairs a pipeline with the strategy that drives it.
type PredictivePipeline struct {
	Pipeline *Pipeline
	Strategy PredictiveStrategy
}

// ToPredictive wraps p with strategy. The pipeline must end its
// computation with a propagate stage.
func (p *Pipeline) ToPredictive(strategy PredictiveStrategy) (*PredictivePipeline, error) {
	if strategy == nil {
		strategy = FieldStrategy{}
	}
	hasPropagate := false
	for _, st := range p.stages {
		if st.Name() == KindPropagate {
			hasPropagate = true
		}
	}
	if !hasPropagate {
		return nil, fmt.Errorf("%w: a predictive pipeline needs a propagate stage", ErrPipeline)
	}
	return &PredictivePipeline{Pipeline: p, Strategy: strategy}, nil
}

// Predict returns one output row per point of cloud.
func (pp *PredictivePipeline) Predict(ctx context.Context, cloud *PointCloud) (*mat.Dense, error) {
	return pp.Strategy.Predict(ctx, pp.Pipeline, cloud)
}
