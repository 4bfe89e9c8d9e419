package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/sanonone/rfield/pkg/core/knn"
	"github.com/sanonone/rfield/pkg/field"
	"gonum.org/v1/gonum/mat"
)

func scenarioConfig() FieldConfig {
	return FieldConfig{CellSize: []float64{1, 1}, BoundingRadii: []float64{1, 1}}
}

func scenarioPoints() *mat.Dense {
	return mat.NewDense(3, 2, []float64{-0.5, -0.5, 0.5, 0.5, 0.9, 0.9})
}

func openMemory(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreateGetDelete(t *testing.T) {
	e := openMemory(t)

	info, err := e.Create("tile", scenarioConfig())
	if err != nil {
		t.Fatal(err)
	}
	if info.NumCells != 4 || info.Fitted || info.NeighborIndex != "kdtree" {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := e.Create("tile", scenarioConfig()); !errors.Is(err, ErrFieldExists) {
		t.Errorf("duplicate create: got %v, want ErrFieldExists", err)
	}
	if _, err := e.Create("bad", FieldConfig{CellSize: []float64{1}}); !errors.Is(err, field.ErrConfiguration) {
		t.Errorf("missing radii: got %v, want ErrConfiguration", err)
	}
	if _, err := e.Create(" ", scenarioConfig()); !errors.Is(err, field.ErrConfiguration) {
		t.Errorf("empty name: got %v, want ErrConfiguration", err)
	}
	bad := scenarioConfig()
	bad.Neighbors = knn.Config{Kind: "ball"}
	if _, err := e.Create("ball", bad); !errors.Is(err, field.ErrConfiguration) {
		t.Errorf("bad index: got %v, want ErrConfiguration", err)
	}

	if _, err := e.Get("tile"); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete("tile"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Get("tile"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("got %v, want ErrFieldNotFound", err)
	}
	if err := e.Delete("tile"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("got %v, want ErrFieldNotFound", err)
	}
}

func TestConcurrentCreateDelete(t *testing.T) {
	e := openMemory(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("field-%d", i)
			for j := 0; j < 20; j++ {
				if _, err := e.Create(name, scenarioConfig()); err != nil {
					t.Errorf("create %s: %v", name, err)
					return
				}
				_ = e.List()
				if err := e.Delete(name); err != nil {
					t.Errorf("delete %s: %v", name, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if n := len(e.List()); n != 0 {
		t.Errorf("%d fields left, want 0", n)
	}
}

func TestCreateCopiesConfig(t *testing.T) {
	e := openMemory(t)
	cfg := scenarioConfig()
	if _, err := e.Create("tile", cfg); err != nil {
		t.Fatal(err)
	}
	cfg.CellSize[0] = 0.25
	cfg.BoundingRadii[0] = 9

	info, err := e.Get("tile")
	if err != nil {
		t.Fatal(err)
	}
	if info.CellSize[0] != 1 || info.BoundingRadii[0] != 1 {
		t.Errorf("caller mutation leaked into the field: %+v", info)
	}
}

func TestListIsSortedByName(t *testing.T) {
	e := openMemory(t)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if _, err := e.Create(name, scenarioConfig()); err != nil {
			t.Fatal(err)
		}
	}
	list := e.List()
	want := []string{"alpha", "bravo", "charlie"}
	if len(list) != len(want) {
		t.Fatalf("got %d fields, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i].Name != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].Name, want[i])
		}
	}
}

func TestFitCentroidsPropagate(t *testing.T) {
	e := openMemory(t)
	if _, err := e.Create("tile", scenarioConfig()); err != nil {
		t.Fatal(err)
	}

	if _, _, err := e.Centroids("tile", false); !errors.Is(err, field.ErrNotFitted) {
		t.Errorf("centroids before fit: got %v", err)
	}

	info, err := e.Fit("tile", scenarioPoints(), []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !info.Fitted || info.Points != 3 || info.NonEmptyCells != 2 || info.MaxOccupancy != 2 {
		t.Errorf("unexpected info %+v", info)
	}

	c, gen, err := e.Centroids("tile", true)
	if err != nil {
		t.Fatal(err)
	}
	if gen != info.Generation {
		t.Errorf("generation %d, want %d", gen, info.Generation)
	}
	if c.NumInterpolated() != 2 {
		t.Errorf("interpolated %d cells, want 2", c.NumInterpolated())
	}

	out, err := e.Propagate("tile", gen, c.NonEmpty(), true)
	if err != nil {
		t.Fatal(err)
	}
	if r, _ := out.Dims(); r != 3 {
		t.Errorf("got %d rows, want 3", r)
	}

	// Refit, then propagate with the old generation.
	if _, err := e.Fit("tile", scenarioPoints(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Propagate("tile", gen, c.NonEmpty(), true); !errors.Is(err, ErrStaleFit) {
		t.Errorf("got %v, want ErrStaleFit", err)
	}
	if _, err := e.Propagate("tile", 0, c.NonEmpty(), true); err != nil {
		t.Errorf("generation 0 should use the current fit: %v", err)
	}
	if _, err := e.Propagate("tile", 0, mat.NewDense(1, 1, []float64{1}), true); !errors.Is(err, field.ErrPropagation) {
		t.Errorf("short values: got %v, want ErrPropagation", err)
	}
}

func TestFitErrorsAreClientErrors(t *testing.T) {
	e := openMemory(t)
	_, _ = e.Create("tile", scenarioConfig())
	_, err := e.Fit("tile", mat.NewDense(1, 3, nil), []float64{0, 0})
	if !IsClientError(err) {
		t.Errorf("got %v, want a client error", err)
	}
	if IsClientError(ErrFieldNotFound) {
		t.Error("ErrFieldNotFound is reported separately")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.AutoSaveInterval = 0

	e, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = e.Create("fitted", scenarioConfig())
	_, _ = e.Create("empty", FieldConfig{
		CellSize:      []float64{0.5},
		BoundingRadii: []float64{2},
		Neighbors:     knn.Config{Kind: knn.KindBruteForce, Metric: "manhattan"},
	})
	if _, err := e.Fit("fitted", scenarioPoints(), []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	list := reopened.List()
	if len(list) != 2 || list[0].Name != "empty" || list[1].Name != "fitted" {
		t.Fatalf("unexpected fields %+v", list)
	}
	if list[0].Fitted || !list[1].Fitted || list[1].Points != 3 {
		t.Errorf("fitted state not restored: %+v", list)
	}
	if list[0].NeighborIndex != "bruteforce" {
		t.Errorf("neighbor index = %s, want bruteforce", list[0].NeighborIndex)
	}

	c, _, err := reopened.Centroids("fitted", false)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Matrix.At(3, 0); got < 0.7-1e-9 || got > 0.7+1e-9 {
		t.Errorf("restored centroid = %v, want 0.7", got)
	}
}

func TestSaveWithoutDataDir(t *testing.T) {
	e := openMemory(t)
	if err := e.SaveSnapshot(); err == nil {
		t.Error("expected an error without a data directory")
	}
}

func TestRowsConversion(t *testing.T) {
	m, err := DenseFromRows([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 2 || c != 2 || m.At(1, 0) != 3 {
		t.Errorf("unexpected matrix %v", mat.Formatted(m))
	}

	for _, rows := range [][][]float64{nil, {{}}, {{1, 2}, {3}}} {
		if _, err := DenseFromRows(rows); !errors.Is(err, field.ErrInvalidInput) {
			t.Errorf("rows %v: expected ErrInvalidInput, got %v", rows, err)
		}
	}

	m.Set(0, 1, math.NaN())
	rows := RowsFromDense(m)
	if rows[0] != nil || len(rows[1]) != 2 || rows[1][1] != 4 {
		t.Errorf("unexpected rows %v", rows)
	}
}
