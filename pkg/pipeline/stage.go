package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/field"
)

// Stage kinds accepted in a StageSpec.
const (
	KindReceptiveField = "receptive_field"
	KindCentroids      = "centroids"
	KindModel          = "model"
	KindPropagate      = "propagate"
	KindWrite          = "write"
)

// StageSpec configures one stage. Kind selects the stage; the other fields
// apply to the kinds named in their comments.
type StageSpec struct {
	Kind string `yaml:"kind" json:"kind"`

	// receptive_field. Center and BoundingRadii default to the bounding box
	// of the cloud.
	CellSize      []float64   `yaml:"cell_size,omitempty" json:"cell_size,omitempty"`
	BoundingRadii []float64   `yaml:"bounding_radii,omitempty" json:"bounding_radii,omitempty"`
	Center        []float64   `yaml:"center,omitempty" json:"center,omitempty"`
	Neighbors     *knn.Config `yaml:"neighbors,omitempty" json:"neighbors,omitempty"`

	// centroids
	Interpolate bool `yaml:"interpolate,omitempty" json:"interpolate,omitempty"`

	// model
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// propagate. Propagation is safe unless Unsafe is set.
	Unsafe bool `yaml:"unsafe,omitempty" json:"unsafe,omitempty"`

	// write, and any other stage that should write the cloud after running.
	Out string `yaml:"out,omitempty" json:"out,omitempty"`
}

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *State) error
}

// NewStage builds the stage described by spec.
func NewStage(spec StageSpec) (Stage, error) {
	switch spec.Kind {
	case KindReceptiveField:
		if len(spec.CellSize) == 0 {
			return nil, fmt.Errorf("%w: receptive_field stage needs a cell_size", ErrPipeline)
		}
		var factory knn.Factory
		if spec.Neighbors != nil {
			f, err := knn.NewFactory(*spec.Neighbors)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPipeline, err)
			}
			factory = f
		}
		return &fieldStage{spec: spec, neighbors: factory}, nil
	case KindCentroids:
		return &centroidsStage{interpolate: spec.Interpolate}, nil
	case KindModel:
		m, err := NewModel(spec.Model)
		if err != nil {
			return nil, err
		}
		return &modelStage{name: spec.Model, model: m}, nil
	case KindPropagate:
		return &propagateStage{safe: !spec.Unsafe}, nil
	case KindWrite:
		if spec.Out == "" {
			return nil, fmt.Errorf("%w: write stage needs an output", ErrPipeline)
		}
		return &writeStage{out: spec.Out}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stage kind '%s'", ErrPipeline, spec.Kind)
	}
}

// fieldStage builds a receptive field for the cloud and fits it.
type fieldStage struct {
	spec      StageSpec
	neighbors knn.Factory
}

func (st *fieldStage) Name() string { return KindReceptiveField }

func (st *fieldStage) Run(_ context.Context, s *State) error {
	coords, err := s.Cloud.Coordinates(len(st.spec.CellSize))
	if err != nil {
		return err
	}
	center, radii := st.spec.Center, st.spec.BoundingRadii
	if center == nil || radii == nil {
		c, r, err := field.BoundingFrame(coords)
		if err != nil {
			return err
		}
		if center == nil {
			center = c
		}
		if radii == nil {
			radii = r
		}
	}

	rf, err := field.New(st.spec.CellSize, radii, field.WithNeighborIndex(st.neighbors))
	if err != nil {
		return err
	}
	f, err := rf.Fit(coords, center)
	if err != nil {
		return err
	}
	s.Field, s.Fitting = rf, f
	s.Centroids, s.Values, s.Predictions = nil, nil, nil
	return nil
}

type centroidsStage struct {
	interpolate bool
}

func (st *centroidsStage) Name() string { return KindCentroids }

func (st *centroidsStage) Run(_ context.Context, s *State) error {
	if s.Fitting == nil {
		return fmt.Errorf("%w: centroids stage needs a receptive_field stage before it", ErrPipeline)
	}
	coords, err := s.Cloud.Coordinates(s.Dims())
	if err != nil {
		return err
	}
	c, err := s.Field.Centroids(s.Fitting, coords, st.interpolate)
	if err != nil {
		return err
	}
	s.Centroids = c
	slog.Debug("[PIPELINE] Centroids computed", "cells", len(c.Empty), "empty", c.NumEmpty(), "interpolated", c.NumInterpolated())
	return nil
}

type modelStage struct {
	name  string
	model Model
}

func (st *modelStage) Name() string { return KindModel + ":" + st.name }

func (st *modelStage) Run(ctx context.Context, s *State) error {
	if s.Centroids == nil {
		return fmt.Errorf("%w: model stage needs a centroids stage before it", ErrPipeline)
	}
	values, err := st.model.Predict(ctx, s.Field, s.Centroids)
	if err != nil {
		return err
	}
	s.Values = values
	s.valueColumns = st.model.Outputs(s.Dims())
	return nil
}

type propagateStage struct {
	safe bool
}

func (st *propagateStage) Name() string { return KindPropagate }

func (st *propagateStage) Run(_ context.Context, s *State) error {
	if s.Values == nil {
		return fmt.Errorf("%w: propagate stage needs a model stage before it", ErrPipeline)
	}
	out, err := s.Fitting.PropagateValues(s.Values, st.safe)
	if err != nil {
		return err
	}
	s.Predictions = out
	_, d := out.Dims()
	names := s.valueColumns
	if len(names) != d {
		names = make([]string, d)
		for i := range names {
			names[i] = fmt.Sprintf("value_%d", i)
		}
	}
	return s.Cloud.AddColumns(names, out)
}

type writeStage struct {
	out string
}

func (st *writeStage) Name() string { return KindWrite }

func (st *writeStage) Run(_ context.Context, s *State) error {
	path := st.out
	if s.outPrefix != "" && !filepath.IsAbs(path) {
		path = s.outPrefix + path
	}
	if err := SaveCSV(path, s.Cloud); err != nil {
		return err
	}
	slog.Info("[PIPELINE] Point cloud written", "path", path, "points", s.Cloud.Len())
	return nil
}

// outputPrefix returns the prefix of a "*" terminated output path.
func outputPrefix(out string) (string, bool) {
	if strings.HasSuffix(out, "*") {
		return strings.TrimSuffix(out, "*"), true
	}
	return "", false
}
