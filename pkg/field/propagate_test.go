package field

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestPropagateCellIndexRoundTrip(t *testing.T) {
	for _, cs := range [][]float64{{1, 1}, {0.5, 0.5, 1}, {0.25}} {
		n := len(cs)
		rf, err := New(cs, ones(n, 10))
		if err != nil {
			t.Fatal(err)
		}
		X := randomCloud(300, n, 42)
		f, err := rf.Fit(X, make([]float64, n))
		if err != nil {
			t.Fatal(err)
		}
		c, err := rf.CentroidsFromPoints(X, false)
		if err != nil {
			t.Fatal(err)
		}

		// One value per non-empty centroid row: the index of its cell.
		rows, _ := c.NonEmpty().Dims()
		values := make([]float64, 0, rows)
		for i, empty := range c.Empty {
			if !empty {
				values = append(values, float64(i))
			}
		}

		got, err := rf.PropagateScalars(values, true)
		if err != nil {
			t.Fatal(err)
		}
		want := f.Matrix.PointCells()
		if len(got) != f.M {
			t.Fatalf("got %d values, want %d", len(got), f.M)
		}
		for j := range want {
			if int(got[j]) != want[j] {
				t.Fatalf("cell size %v point %d: propagated %v, fitted cell %d", cs, j, got[j], want[j])
			}
		}
	}
}

func TestPropagateVectors(t *testing.T) {
	rf, X := scenarioField(t)
	c, err := rf.CentroidsFromPoints(X, false)
	if err != nil {
		t.Fatal(err)
	}
	out, err := rf.PropagateValues(c.NonEmpty(), true)
	if err != nil {
		t.Fatal(err)
	}
	r, d := out.Dims()
	if r != 3 || d != 2 {
		t.Fatalf("output is %dx%d, want 3x2", r, d)
	}
	want := mat.NewDense(3, 2, []float64{-0.5, -0.5, 0.7, 0.7, 0.7, 0.7})
	if !mat.EqualApprox(out, want, tolerance) {
		t.Errorf("got %v, want %v", mat.Formatted(out), mat.Formatted(want))
	}
}

func TestSafePropagation(t *testing.T) {
	rf, _ := scenarioField(t)

	t.Run("ExactLength", func(t *testing.T) {
		out, err := rf.PropagateScalars([]float64{1, 2}, true)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 3 || out[0] != 1 || out[1] != 2 || out[2] != 2 {
			t.Errorf("got %v, want [1 2 2]", out)
		}
	})

	t.Run("TooShortSafe", func(t *testing.T) {
		if _, err := rf.PropagateScalars([]float64{1}, true); !errors.Is(err, ErrPropagation) {
			t.Errorf("got %v, want ErrPropagation", err)
		}
		if _, err := rf.PropagateValues(mat.NewDense(1, 2, nil), true); !errors.Is(err, ErrPropagation) {
			t.Errorf("got %v, want ErrPropagation", err)
		}
	})

	t.Run("TooShortUnsafe", func(t *testing.T) {
		out, err := rf.PropagateScalars([]float64{1}, false)
		if err != nil {
			t.Fatal(err)
		}
		if out[0] != 1 || !math.IsNaN(out[1]) || !math.IsNaN(out[2]) {
			t.Errorf("got %v, want [1 NaN NaN]", out)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		for _, safe := range []bool{true, false} {
			if _, err := rf.PropagateScalars([]float64{1, 2, 3}, safe); !errors.Is(err, ErrPropagation) {
				t.Errorf("safe=%v: got %v, want ErrPropagation", safe, err)
			}
		}
	})

	t.Run("NaNValueSafe", func(t *testing.T) {
		if _, err := rf.PropagateScalars([]float64{1, math.NaN()}, true); !errors.Is(err, ErrPropagation) {
			t.Errorf("got %v, want ErrPropagation", err)
		}
	})

	t.Run("NilValues", func(t *testing.T) {
		if _, err := rf.PropagateValues(nil, true); !errors.Is(err, ErrPropagation) {
			t.Errorf("got %v, want ErrPropagation", err)
		}
	})
}

func TestPropagateBeforeFit(t *testing.T) {
	rf, _ := New([]float64{1}, []float64{1})
	_, err := rf.PropagateScalars([]float64{1}, true)
	if !errors.Is(err, ErrNotFitted) || !errors.Is(err, ErrPropagation) {
		t.Errorf("got %v, want ErrNotFitted", err)
	}
}

func TestPropagateAgainstOldFitting(t *testing.T) {
	rf, _ := scenarioField(t)
	old := rf.Fitting()
	if _, err := rf.Fit(mat.NewDense(1, 2, []float64{0.1, 0.1}), []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	// The old fitting still describes its own points.
	out, err := old.PropagateScalars([]float64{1, 2}, true)
	if err != nil || len(out) != 3 {
		t.Fatalf("got %v, %v", out, err)
	}
	// The current one has a single non-empty cell.
	if _, err := rf.PropagateScalars([]float64{1, 2}, true); !errors.Is(err, ErrPropagation) {
		t.Errorf("got %v, want ErrPropagation", err)
	}
}

func BenchmarkFitAndPropagate(b *testing.B) {
	rf, _ := New([]float64{0.1, 0.1, 0.1}, ones(3, 10))
	X := randomCloud(100000, 3, 1)
	center := make([]float64, 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, err := rf.Fit(X, center)
		if err != nil {
			b.Fatal(err)
		}
		values := make([]float64, f.Matrix.NumNonEmpty())
		if _, err := f.PropagateScalars(values, true); err != nil {
			b.Fatal(err)
		}
	}
}
