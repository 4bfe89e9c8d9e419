package field

import (
	"errors"
	"math"
	"testing"
)

func TestNumCells(t *testing.T) {
	tests := []struct {
		cellSize []float64
		want     int
	}{
		{[]float64{1, 1, 1}, 8},
		{[]float64{2, 2, 2}, 1},
		{[]float64{0.5, 0.5}, 16},
		{[]float64{1, 1}, 4},
		{[]float64{2}, 1},
		{[]float64{0.4}, 5},
		{[]float64{1, 2, 0.5}, 8},
	}
	for _, tt := range tests {
		g, err := NewGrid(tt.cellSize)
		if err != nil {
			t.Fatalf("NewGrid(%v): %v", tt.cellSize, err)
		}
		if got := g.NumCells(); got != tt.want {
			t.Errorf("NewGrid(%v).NumCells() = %d, want %d", tt.cellSize, got, tt.want)
		}
		if g.Dims() != len(tt.cellSize) {
			t.Errorf("Dims() = %d, want %d", g.Dims(), len(tt.cellSize))
		}
	}
}

func TestNewGridRejectsBadCellSize(t *testing.T) {
	tests := map[string][]float64{
		"Empty":    {},
		"Nil":      nil,
		"Zero":     {1, 0},
		"Negative": {-0.5},
		"TooLarge": {2.5},
		"NaN":      {math.NaN()},
		"Inf":      {math.Inf(1)},
		"TooFine":  {1e-4, 1e-4, 1e-4},
	}
	for name, cs := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewGrid(cs); !errors.Is(err, ErrConfiguration) {
				t.Errorf("got %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestFactors(t *testing.T) {
	g, err := NewGrid([]float64{0.5, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 4, 8}
	for i, f := range g.Factors() {
		if f != want[i] {
			t.Fatalf("Factors() = %v, want %v", g.Factors(), want)
		}
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	for _, cs := range [][]float64{{1, 1, 1}, {0.5, 0.5}, {0.5, 1, 2}, {0.25}} {
		g, err := NewGrid(cs)
		if err != nil {
			t.Fatal(err)
		}
		for flat := 0; flat < g.NumCells(); flat++ {
			if got := g.Flatten(g.Unflatten(flat)); got != flat {
				t.Errorf("cell size %v: Flatten(Unflatten(%d)) = %d", cs, flat, got)
			}
		}
	}
}

func TestCellOf(t *testing.T) {
	g, err := NewGrid([]float64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x    []float64
		want int
	}{
		{[]float64{-1, -1}, 0},
		{[]float64{-0.5, -0.5}, 0},
		{[]float64{0.5, -0.5}, 1},
		{[]float64{-0.5, 0.5}, 2},
		{[]float64{0.5, 0.5}, 3},
		{[]float64{0, 0}, 3}, // boundaries belong to the upper cell
		{[]float64{1, 1}, 3}, // max vertex stays in the last cell
		{[]float64{5, -5}, 1},
	}
	for _, tt := range tests {
		if got := g.CellOf(tt.x); got != tt.want {
			t.Errorf("CellOf(%v) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestGridAcceptsNonDividingCellSizes(t *testing.T) {
	tests := []struct {
		cellSize []float64
		cells    int
	}{
		{[]float64{0.6, 0.6, 0.6}, 37},
		{[]float64{0.15, 0.15, 0.15}, 2370},
		{[]float64{1.9, 0.3}, 7},
	}
	for _, tt := range tests {
		g, err := NewGrid(tt.cellSize)
		if err != nil {
			t.Fatalf("NewGrid(%v): %v", tt.cellSize, err)
		}
		if got := g.NumCells(); got != tt.cells {
			t.Errorf("NewGrid(%v).NumCells() = %d, want %d", tt.cellSize, got, tt.cells)
		}
	}

	// The upper corner of a 0.6 grid flattens past the last cell.
	g, _ := NewGrid([]float64{0.6, 0.6, 0.6})
	if got := g.CellOf([]float64{0, 0, 0}); got != 21 {
		t.Errorf("CellOf(origin) = %d, want 21", got)
	}
	if got := g.CellOf([]float64{1, 1, 1}); got != 42 {
		t.Errorf("CellOf(max vertex) = %d, want 42", got)
	}
}

func TestMaxVertexLandsInLastCellPerAxis(t *testing.T) {
	for _, cs := range [][]float64{{1, 1, 1}, {0.5, 0.5}, {0.4, 0.5}, {2, 0.25}} {
		g, err := NewGrid(cs)
		if err != nil {
			t.Fatal(err)
		}
		x := make([]float64, len(cs))
		for i := range x {
			x[i] = 1
		}
		cell := g.CellOf(x)
		if cell >= g.NumCells() {
			t.Fatalf("cell size %v: max vertex in cell %d of %d", cs, cell, g.NumCells())
		}
		for k, c := range g.Unflatten(cell) {
			if want := int(math.Floor(2/cs[k])) - 1; c != want {
				t.Errorf("cell size %v axis %d: coordinate %d, want %d", cs, k, c, want)
			}
		}
	}
}

func TestCellCenter(t *testing.T) {
	g, err := NewGrid([]float64{1, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	// Cell 5 is (1, 2): x in [0, 1], y in [0, 0.5].
	got := g.CellCenter(5, nil)
	want := []float64{0.5, 0.25}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("CellCenter(5) = %v, want %v", got, want)
		}
	}
	if c := g.CellOf(got); c != 5 {
		t.Errorf("center of cell 5 maps to cell %d", c)
	}
}

func TestNeighborCount(t *testing.T) {
	for dims, want := range map[int]int{1: 2, 2: 8, 3: 26} {
		cs := make([]float64, dims)
		for i := range cs {
			cs[i] = 1
		}
		g, _ := NewGrid(cs)
		if got := g.NeighborCount(); got != want {
			t.Errorf("%d dims: NeighborCount() = %d, want %d", dims, got, want)
		}
	}
}
