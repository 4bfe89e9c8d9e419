package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

const squareCloud = `x,y
0,0
10,0
0,10
10,10
2,2
8,8
`

func writeCloud(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func fieldStages(model string) []StageSpec {
	return []StageSpec{
		{Kind: KindReceptiveField, CellSize: []float64{1, 1}},
		{Kind: KindCentroids},
		{Kind: KindModel, Model: model},
		{Kind: KindPropagate},
	}
}

func TestPipelineCellIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)
	out := filepath.Join(dir, "out.csv")

	p, err := New(Spec{Inputs: []string{in}, Outputs: []string{out}, Stages: fieldStages("cell_index")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, err := LoadCSV(out)
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y", "cell_index"}, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	want := []float64{0, 1, 2, 3, 0, 3}
	for i, w := range want {
		if v := got.Data.At(i, 2); v != w {
			t.Errorf("point %d: expected cell %v, got %v", i, w, v)
		}
	}
}

func TestPipelineCentroidModel(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)

	p, err := New(Spec{Inputs: []string{in}, Stages: fieldStages("centroid")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s, err := p.RunCase(context.Background(), in, "")
	if err != nil {
		t.Fatalf("RunCase failed: %v", err)
	}

	// Points 0 and 4 share cell 0, points 3 and 5 share cell 3.
	want := [][]float64{{1, 1}, {10, 0}, {0, 10}, {9, 9}, {1, 1}, {9, 9}}
	for i, w := range want {
		for k := range w {
			if v := s.Predictions.At(i, k); math.Abs(v-w[k]) > 1e-9 {
				t.Errorf("point %d component %d: expected %v, got %v", i, k, w[k], v)
			}
		}
	}
	if diff := cmp.Diff([]string{"x", "y", "centroid_0", "centroid_1"}, s.Cloud.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelinePrefixOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)
	prefix := filepath.Join(dir, "case1_")

	stages := append(fieldStages("cell_index"), StageSpec{Kind: KindWrite, Out: "cells.csv"})
	p, err := New(Spec{Inputs: []string{in}, Outputs: []string{prefix + "*"}, Stages: stages})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(prefix + "cells.csv"); err != nil {
		t.Errorf("expected the write stage to use the prefix: %v", err)
	}
	if _, err := os.Stat(prefix); err == nil {
		t.Errorf("a prefix output must not be written as a file")
	}
}

func TestPipelineValidation(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)
	stages := fieldStages("cell_index")

	tests := []struct {
		name string
		spec Spec
	}{
		{"no inputs", Spec{Stages: stages}},
		{"empty input", Spec{Inputs: []string{""}, Stages: stages}},
		{"missing input", Spec{Inputs: []string{filepath.Join(dir, "nope.csv")}, Stages: stages}},
		{"directory input", Spec{Inputs: []string{dir}, Stages: stages}},
		{"outputs count", Spec{Inputs: []string{in}, Outputs: []string{"a.csv", "b.csv"}, Stages: stages}},
		{"missing output dir", Spec{Inputs: []string{in}, Outputs: []string{filepath.Join(dir, "no", "out.csv")}, Stages: stages}},
		{"no stages", Spec{Inputs: []string{in}}},
		{"unknown kind", Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: "smooth"}}}},
		{"unknown model", Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: KindModel, Model: "resnet"}}}},
		{"field without cell size", Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: KindReceptiveField}}}},
		{"write without output", Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: KindWrite}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.spec); !errors.Is(err, ErrPipeline) {
				t.Errorf("expected ErrPipeline, got %v", err)
			}
		})
	}
}

func TestPipelineStageOrder(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)

	p, err := New(Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: KindCentroids}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.RunCase(context.Background(), in, ""); !errors.Is(err, ErrPipeline) {
		t.Errorf("expected ErrPipeline for centroids without a field, got %v", err)
	}
}

func TestPipelineFieldErrorsAreWrapped(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)

	// Three coordinates on a two column cloud.
	p, err := New(Spec{Inputs: []string{in}, Stages: []StageSpec{{Kind: KindReceptiveField, CellSize: []float64{1, 1, 1}}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = p.RunCase(context.Background(), in, "")
	if !errors.Is(err, ErrPipeline) {
		t.Errorf("expected ErrPipeline, got %v", err)
	}
}

func TestPredictivePipeline(t *testing.T) {
	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)

	p, err := New(Spec{Inputs: []string{in}, Stages: fieldStages("cell_index")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	pp, err := p.ToPredictive(FieldStrategy{})
	if err != nil {
		t.Fatalf("ToPredictive failed: %v", err)
	}

	cloud, err := ReadCSV(strings.NewReader(squareCloud))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	out, err := pp.Predict(context.Background(), cloud)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	want := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 0, 3})
	if !mat.Equal(out, want) {
		t.Errorf("unexpected predictions:\n%v", mat.Formatted(out))
	}
	if _, c := cloud.Data.Dims(); c != 2 {
		t.Errorf("Predict must not modify the input cloud, got %d columns", c)
	}

	short, err := New(Spec{Inputs: []string{in}, Stages: fieldStages("cell_index")[:2]})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := short.ToPredictive(nil); !errors.Is(err, ErrPipeline) {
		t.Errorf("expected ErrPipeline without a propagate stage, got %v", err)
	}
}

func TestRegisterModel(t *testing.T) {
	RegisterModel("ones", func() Model { return onesModel{} })

	dir := t.TempDir()
	in := writeCloud(t, dir, "in.csv", squareCloud)
	p, err := New(Spec{Inputs: []string{in}, Stages: fieldStages("ones")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s, err := p.RunCase(context.Background(), in, "")
	if err != nil {
		t.Fatalf("RunCase failed: %v", err)
	}
	for i := 0; i < s.Cloud.Len(); i++ {
		if v := s.Predictions.At(i, 0); v != 1 {
			t.Errorf("point %d: expected 1, got %v", i, v)
		}
	}
}

type onesModel struct{}

func (onesModel) Predict(_ context.Context, _ *field.ReceptiveField, c *field.Centroids) (*mat.Dense, error) {
	n := len(c.Empty) - c.NumEmpty()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, 1)
	}
	return out, nil
}

func (onesModel) Outputs(int) []string { return []string{"one"} }

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name, input string
	}{
		{"empty", ""},
		{"header only", "x,y\n"},
		{"not a number", "x,y\n1,abc\n"},
		{"ragged", "x,y\n1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}
