package mcp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/field"
)

func newService(t *testing.T) *Service {
	t.Helper()
	eng, err := engine.Open(engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return NewService(eng)
}

func TestToolsRoundTrip(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, created, err := s.CreateField(ctx, nil, CreateFieldArgs{
		Name:          "tile",
		CellSize:      []float64{1, 1},
		BoundingRadii: []float64{2, 2},
		Index:         "bruteforce",
	})
	if err != nil {
		t.Fatalf("create_field failed: %v", err)
	}
	if created.Field.NeighborIndex != "bruteforce" || created.Field.NumCells != 4 {
		t.Errorf("unexpected field: %+v", created.Field)
	}

	// Center (0,0), radius 2: the first point lands in cell 0, the others in cell 3.
	_, fitted, err := s.FitField(ctx, nil, FitFieldArgs{
		Name:   "tile",
		Points: [][]float64{{-1, -1}, {1, 1}, {1.8, 1.8}},
		Center: []float64{0, 0},
	})
	if err != nil {
		t.Fatalf("fit_field failed: %v", err)
	}
	if fitted.Field.NonEmptyCells != 2 {
		t.Errorf("expected 2 non-empty cells, got %d", fitted.Field.NonEmptyCells)
	}

	_, cr, err := s.Centroids(ctx, nil, CentroidsArgs{Name: "tile", Denormalize: true})
	if err != nil {
		t.Fatalf("field_centroids failed: %v", err)
	}
	if cr.Centroids[1] != nil {
		t.Errorf("empty cell should be nil, got %v", cr.Centroids[1])
	}
	if got := cr.Centroids[3][0]; math.Abs(got-1.4) > 1e-9 {
		t.Errorf("denormalized centroid of cell 3 = %v, want 1.4", got)
	}

	_, pr, err := s.Propagate(ctx, nil, PropagateArgs{Name: "tile", Generation: cr.Generation, Values: [][]float64{{1}, {2}}})
	if err != nil {
		t.Fatalf("propagate_values failed: %v", err)
	}
	for i, want := range []float64{1, 2, 2} {
		if pr.Values[i][0] != want {
			t.Errorf("point %d: expected %v, got %v", i, want, pr.Values[i])
		}
	}

	_, list, err := s.ListFields(ctx, nil, ListFieldsArgs{})
	if err != nil || len(list.Fields) != 1 || list.Fields[0].Name != "tile" {
		t.Errorf("unexpected list %+v (%v)", list, err)
	}
}

func TestToolErrors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, _, err := s.CreateField(ctx, nil, CreateFieldArgs{Name: "x", CellSize: []float64{1}, BoundingRadii: []float64{1}, Index: "octree"}); !errors.Is(err, field.ErrConfiguration) {
		t.Errorf("unknown index: expected ErrConfiguration, got %v", err)
	}
	if _, _, err := s.FitField(ctx, nil, FitFieldArgs{Name: "x", Points: [][]float64{{1}}}); !errors.Is(err, engine.ErrFieldNotFound) {
		t.Errorf("unknown field: expected ErrFieldNotFound, got %v", err)
	}
	if _, _, err := s.FitField(ctx, nil, FitFieldArgs{Name: "x"}); !errors.Is(err, field.ErrInvalidInput) {
		t.Errorf("no points: expected ErrInvalidInput, got %v", err)
	}

	if _, _, err := s.CreateField(ctx, nil, CreateFieldArgs{Name: "line", CellSize: []float64{1}, BoundingRadii: []float64{1}}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Propagate(ctx, nil, PropagateArgs{Name: "line", Values: [][]float64{{1}}}); !errors.Is(err, field.ErrNotFitted) {
		t.Errorf("propagate before fit: expected ErrNotFitted, got %v", err)
	}
}
