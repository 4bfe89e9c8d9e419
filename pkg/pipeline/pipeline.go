// Package pipeline runs receptive fields over point clouds stored on disk.
//
// A Pipeline is an ordered list of stages applied to each input cloud in
// turn. The usual sequence fits a receptive field, computes the centroids,
// hands them to a Model and propagates the model output back to the points.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Spec describes a pipeline. Outputs is either empty or holds one entry per
// input. An output ending in "*" is a prefix for the write stages; any other
// output is the path of the cloud written after the last stage.
type Spec struct {
	Inputs  []string    `yaml:"inputs" json:"inputs"`
	Outputs []string    `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Stages  []StageSpec `yaml:"stages" json:"stages"`
}

// Pipeline is a validated Spec.
type Pipeline struct {
	spec   Spec
	stages []Stage
}

// New validates spec and builds its stages.
func New(spec Spec) (*Pipeline, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{spec: spec}
	for i, ss := range spec.Stages {
		st, err := NewStage(ss)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

func (s Spec) validate() error {
	if len(s.Inputs) == 0 {
		return fmt.Errorf("%w: at least one input is required", ErrPipeline)
	}
	for i, in := range s.Inputs {
		if in == "" {
			return fmt.Errorf("%w: input %d is empty", ErrPipeline, i)
		}
		info, err := os.Stat(in)
		if err != nil {
			return fmt.Errorf("%w: input %s: %v", ErrPipeline, in, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: input %s is a directory", ErrPipeline, in)
		}
	}
	if len(s.Outputs) > 0 && len(s.Outputs) != len(s.Inputs) {
		return fmt.Errorf("%w: %d outputs for %d inputs", ErrPipeline, len(s.Outputs), len(s.Inputs))
	}
	for i, out := range s.Outputs {
		if out == "" {
			return fmt.Errorf("%w: output %d is empty", ErrPipeline, i)
		}
		dir := filepath.Dir(out)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: output directory %s does not exist", ErrPipeline, dir)
		}
	}
	if len(s.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrPipeline)
	}
	return nil
}

// Spec returns a copy of the spec the pipeline was built from.
func (p *Pipeline) Spec() Spec {
	s := p.spec
	s.Inputs = slices.Clone(s.Inputs)
	s.Outputs = slices.Clone(s.Outputs)
	s.Stages = slices.Clone(s.Stages)
	return s
}

// Stages returns the names of the stages in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name()
	}
	return names
}

// Run processes every input. It stops at the first failing case.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	for i, in := range p.spec.Inputs {
		out := ""
		if len(p.spec.Outputs) > 0 {
			out = p.spec.Outputs[i]
		}
		if _, err := p.RunCase(ctx, in, out); err != nil {
			return fmt.Errorf("case %s: %w", in, err)
		}
	}
	slog.Info("[PIPELINE] Run complete", "cases", len(p.spec.Inputs), "duration", time.Since(start))
	return nil
}

// RunCase processes a single input cloud. out follows the rules of
// Spec.Outputs and may be empty.
func (p *Pipeline) RunCase(ctx context.Context, in, out string) (*State, error) {
	start := time.Now()
	cloud, err := LoadCSV(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPipeline, err)
	}

	s := &State{Cloud: cloud}
	prefix, isPrefix := outputPrefix(out)
	if isPrefix {
		s.outPrefix = prefix
	}
	if err := p.runStages(ctx, s); err != nil {
		return s, err
	}
	if out != "" && !isPrefix {
		if err := SaveCSV(out, s.Cloud); err != nil {
			return s, fmt.Errorf("%w: %v", ErrPipeline, err)
		}
	}

	slog.Info("[PIPELINE] Case complete",
		"input", in,
		"points", cloud.Len(),
		"duration", time.Since(start),
	)
	return s, nil
}

// RunCloud runs the stages on an in-memory cloud. The cloud is copied, so
// the caller's value is left untouched.
func (p *Pipeline) RunCloud(ctx context.Context, cloud *PointCloud) (*State, error) {
	if cloud == nil || cloud.Data == nil {
		return nil, fmt.Errorf("%w: no point cloud", ErrPipeline)
	}
	s := &State{Cloud: &PointCloud{
		Columns: slices.Clone(cloud.Columns),
		Data:    mat.DenseCopyOf(cloud.Data),
	}}
	if err := p.runStages(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Pipeline) runStages(ctx context.Context, s *State) error {
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := time.Now()
		if err := st.Run(ctx, s); err != nil {
			if !errors.Is(err, ErrPipeline) {
				err = fmt.Errorf("%w: stage %s: %w", ErrPipeline, st.Name(), err)
			}
			return err
		}
		slog.Debug("[PIPELINE] Stage complete", "stage", st.Name(), "duration", time.Since(t))
	}
	return nil
}
